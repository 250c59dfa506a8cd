// Package cli 控制台的命令行界面，单次命令与交互式 shell 共用同一套命令。
package cli

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/adminconsole/pkg/errors"
	"github.com/adminconsole/services/console/internal/app"
	"github.com/adminconsole/services/console/internal/guard"
	"github.com/adminconsole/services/console/internal/menu"
	"github.com/adminconsole/services/console/internal/session"
	"github.com/chzyer/readline"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

// ErrExit shell 中的 exit 命令
var ErrExit = stderrors.New("exit requested")

// PasswordFunc 读取密码
type PasswordFunc func(prompt string) (string, error)

// command 一条子命令
type command struct {
	name  string
	usage string
	run   func(ctx context.Context, args []string) error
}

// CLI 命令行界面
type CLI struct {
	console  *app.Console
	out      io.Writer
	password PasswordFunc
	commands map[string]*command
	order    []string
}

// New 创建命令行界面
func New(console *app.Console, out io.Writer) *CLI {
	c := &CLI{console: console, out: out, password: terminalPassword}
	c.commands = make(map[string]*command)
	c.add("login", "login -u <用户名> [-p <密码>] [--phone]", c.login)
	c.add("sms-code", "sms-code --phone <手机号>", c.smsCode)
	c.add("sms-login", "sms-login --phone <手机号> --code <验证码>", c.smsLogin)
	c.add("logout", "logout", c.logout)
	c.add("whoami", "whoami", c.whoami)
	c.add("menus", "menus", c.menus)
	c.add("routes", "routes", c.routes)
	c.add("nav", "nav <路径>", c.nav)
	c.add("open", "open <路径>", c.open)
	c.add("call", "call <方法> <路径> [JSON请求体]", c.call)
	c.add("help", "help", c.help)
	return c
}

// SetPasswordFunc 替换密码读取方式
func (c *CLI) SetPasswordFunc(fn PasswordFunc) {
	c.password = fn
}

func (c *CLI) add(name, usage string, run func(ctx context.Context, args []string) error) {
	c.commands[name] = &command{name: name, usage: usage, run: run}
	c.order = append(c.order, name)
}

// Execute 执行一条命令
func (c *CLI) Execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return c.help(ctx, nil)
	}
	switch args[0] {
	case "exit", "quit":
		return ErrExit
	}
	cmd, ok := c.commands[args[0]]
	if !ok {
		return fmt.Errorf("未知命令: %s", args[0])
	}
	return cmd.run(ctx, args[1:])
}

// Shell 交互式执行命令，直到 exit 或 EOF
func (c *CLI) Shell(ctx context.Context, historyFile string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          c.prompt(),
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    c.completer(),
	})
	if err != nil {
		return fmt.Errorf("初始化 readline 失败: %w", err)
	}
	defer rl.Close()
	c.password = func(prompt string) (string, error) {
		b, err := rl.ReadPassword(prompt)
		return string(b), err
	}

	for {
		line, err := rl.Readline()
		if stderrors.Is(err, readline.ErrInterrupt) {
			fmt.Fprintln(c.out, "输入 exit 退出")
			continue
		}
		if stderrors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		err = c.Execute(ctx, ParseArgs(line))
		if stderrors.Is(err, ErrExit) {
			return nil
		}
		if err != nil {
			fmt.Fprintln(c.out, "错误:", err)
		}
		rl.SetPrompt(c.prompt())
	}
}

func (c *CLI) prompt() string {
	if s := c.console.Session.Current(); s.LoggedIn() {
		return fmt.Sprintf("%s@%s> ", s.Username, c.console.History.Current())
	}
	return "console> "
}

func (c *CLI) completer() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(c.order)+1)
	for _, name := range c.order {
		items = append(items, readline.PcItem(name))
	}
	items = append(items, readline.PcItem("exit"))
	return readline.NewPrefixCompleter(items...)
}

// ParseArgs 按空白切分命令行，双引号内的空白保留
func ParseArgs(line string) []string {
	var args []string
	var cur strings.Builder
	inQuotes, has := false, false
	for _, r := range strings.TrimSpace(line) {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			has = true
		case (r == ' ' || r == '\t') && !inQuotes:
			if has {
				args = append(args, cur.String())
				cur.Reset()
				has = false
			}
		default:
			cur.WriteRune(r)
			has = true
		}
	}
	if has {
		args = append(args, cur.String())
	}
	return args
}

func terminalPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("未提供密码且标准输入不是终端")
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func flagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func (c *CLI) login(ctx context.Context, args []string) error {
	fs := flagSet("login")
	username := fs.StringP("username", "u", "", "用户名或手机号")
	password := fs.StringP("password", "p", "", "密码，为空时从终端读取")
	byPhone := fs.Bool("phone", false, "使用手机号登录")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" && fs.NArg() > 0 {
		*username = fs.Arg(0)
	}
	if *username == "" {
		return fmt.Errorf("用法: %s", c.commands["login"].usage)
	}
	if *password == "" {
		p, err := c.password("密码: ")
		if err != nil {
			return err
		}
		*password = p
	}

	creds := session.Credentials{Username: *username, Password: *password}
	if *byPhone {
		creds.Type = session.LoginByPhone
	}
	d, err := c.console.Login(ctx, creds)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "登录成功，当前页面 %s\n", d.Target)
	return nil
}

func (c *CLI) smsCode(ctx context.Context, args []string) error {
	fs := flagSet("sms-code")
	phone := fs.String("phone", "", "手机号")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *phone == "" {
		return fmt.Errorf("用法: %s", c.commands["sms-code"].usage)
	}
	if err := c.console.API.SendSmsCode(ctx, *phone, ""); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "验证码已发送")
	return nil
}

func (c *CLI) smsLogin(ctx context.Context, args []string) error {
	fs := flagSet("sms-login")
	phone := fs.String("phone", "", "手机号")
	code := fs.String("code", "", "验证码")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *phone == "" || *code == "" {
		return fmt.Errorf("用法: %s", c.commands["sms-login"].usage)
	}
	d, err := c.console.LoginBySms(ctx, session.SmsCredentials{Phone: *phone, Code: *code})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "登录成功，当前页面 %s\n", d.Target)
	return nil
}

func (c *CLI) logout(ctx context.Context, _ []string) error {
	if err := c.console.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "已退出登录")
	return nil
}

func (c *CLI) whoami(_ context.Context, _ []string) error {
	s := c.console.Session.Current()
	if !s.LoggedIn() {
		return errors.ErrNotLoggedIn
	}
	fmt.Fprintf(c.out, "用户: %s (%s) ID=%d\n", s.Username, s.NickName, s.UserID)
	fmt.Fprintf(c.out, "角色: %s\n", strings.Join(s.Roles, ", "))
	fmt.Fprintf(c.out, "令牌有效期: %d 秒，自动刷新: %v\n", s.ExpiresIn, c.console.Session.TimerArmed())
	return nil
}

func (c *CLI) menus(ctx context.Context, _ []string) error {
	if !c.console.Session.IsLoggedIn() {
		return errors.ErrNotLoggedIn
	}
	if !c.console.Menus.Loaded() {
		if _, err := c.console.Menus.Fetch(ctx); err != nil {
			return err
		}
	}
	var walk func(nodes []menu.Node, depth int)
	walk = func(nodes []menu.Node, depth int) {
		for _, n := range nodes {
			if n.MenuType == menu.TypeButton {
				continue
			}
			fmt.Fprintf(c.out, "%s%s  %s\n", strings.Repeat("  ", depth), n.MenuName, n.Path)
			walk(n.Children, depth+1)
		}
	}
	walk(c.console.Menus.SidebarMenus(), 0)
	return nil
}

func (c *CLI) routes(_ context.Context, _ []string) error {
	list := c.console.Table.Routes()
	sort.SliceStable(list, func(i, j int) bool { return list[i].FullPath < list[j].FullPath })
	for _, r := range list {
		flag := ""
		if r.Dynamic {
			flag = " *"
		}
		fmt.Fprintf(c.out, "%-24s %-12s %s%s\n", r.FullPath, r.Name, r.Meta.Perms, flag)
	}
	return nil
}

func (c *CLI) printDecision(d guard.Decision) {
	if d.Message != "" {
		fmt.Fprintln(c.out, d.Message)
	}
	title := d.Route.Meta.Title
	if title == "" {
		title = d.Route.View.Title
	}
	fmt.Fprintf(c.out, "当前页面 %s %s\n", d.Target, title)
}

func (c *CLI) nav(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("用法: %s", c.commands["nav"].usage)
	}
	c.printDecision(c.console.Navigate(ctx, args[0]))
	return nil
}

func (c *CLI) open(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("用法: %s", c.commands["open"].usage)
	}
	page, err := c.console.Open(ctx, args[0])
	if page != nil {
		c.printDecision(page.Decision)
	}
	if err != nil {
		return err
	}
	return c.printJSON(page.Data)
}

func (c *CLI) call(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("用法: %s", c.commands["call"].usage)
	}
	var body interface{}
	if len(args) > 2 {
		if err := json.Unmarshal([]byte(args[2]), &body); err != nil {
			return fmt.Errorf("请求体不是合法的 JSON: %w", err)
		}
	}
	path, rawQuery, _ := strings.Cut(args[1], "?")
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return fmt.Errorf("查询参数错误: %w", err)
	}
	data, err := c.console.API.Call(ctx, args[0], path, query, body)
	if err != nil {
		return err
	}
	return c.printJSON(data)
}

func (c *CLI) printJSON(data json.RawMessage) error {
	if len(data) == 0 {
		fmt.Fprintln(c.out, "(无数据)")
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		_, err = c.out.Write(append(data, '\n'))
		return err
	}
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *CLI) help(_ context.Context, _ []string) error {
	for _, name := range c.order {
		fmt.Fprintf(c.out, "  %s\n", c.commands[name].usage)
	}
	fmt.Fprintln(c.out, "  exit")
	return nil
}
