// Package console is the interactive terminal frontend: a command loop
// over the sync engine, plus a drop-folder watcher that uploads files
// placed into a local directory.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/MaxymDv/CloudDrive-System/pkg/client"
	"github.com/MaxymDv/CloudDrive-System/pkg/engine"
	"github.com/MaxymDv/CloudDrive-System/pkg/protocol"
	"github.com/MaxymDv/CloudDrive-System/pkg/session"
)

// Console runs the interactive session. It is the engine's Surface: the
// preview area is rendered as plain text to the output writer.
type Console struct {
	api      *client.Client
	engine   *engine.Engine
	sessions *session.Store

	in  *bufio.Scanner
	out io.Writer

	mu     sync.Mutex
	buffer string // current editor content
}

// New builds a console over the given client and session store.
func New(api *client.Client, sessions *session.Store, in io.Reader, out io.Writer) *Console {
	c := &Console{
		api:      api,
		sessions: sessions,
		in:       bufio.NewScanner(in),
		out:      out,
	}
	c.engine = engine.New(engine.Config{
		API:     api,
		Surface: c,
		Notify:  c,
		OnAuthError: func() {
			fmt.Fprintln(c.out, "Session expired, please log in again.")
			if sessions != nil {
				sessions.Delete()
			}
		},
	})
	return c
}

// Engine exposes the underlying engine, mainly for the drop uploader.
func (c *Console) Engine() *engine.Engine { return c.engine }

// Surface implementation.

func (c *Console) ShowImage(url string) {
	fmt.Fprintf(c.out, "[image] %s\n", url)
}

func (c *Console) ShowEditor(text string) {
	c.mu.Lock()
	c.buffer = text
	c.mu.Unlock()
	fmt.Fprintf(c.out, "--- editable ---\n%s\n----------------\n", text)
}

func (c *Console) ShowText(text string) {
	fmt.Fprintf(c.out, "--- read-only ---\n%s\n-----------------\n", text)
}

func (c *Console) ShowPlaceholder(msg string) {
	fmt.Fprintln(c.out, msg)
}

func (c *Console) ShowPreviewError(msg string) {
	fmt.Fprintf(c.out, "! %s\n", msg)
}

// Notify implements engine.Notifier.
func (c *Console) Notify(msg string) {
	fmt.Fprintf(c.out, "* %s\n", msg)
}

// Confirm implements engine.Confirmer by asking on the terminal.
func (c *Console) Confirm(prompt string) bool {
	fmt.Fprintf(c.out, "%s [y/N]: ", prompt)
	if !c.in.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(c.in.Text()))
	return answer == "y" || answer == "yes"
}

// WatchDrops consumes a drop target and uploads every file it emits.
func (c *Console) WatchDrops(ctx context.Context, drops engine.DropTarget) {
	go func() {
		for {
			select {
			case path, ok := <-drops.Drops():
				if !ok {
					return
				}
				c.uploadPath(ctx, path)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (c *Console) uploadPath(ctx context.Context, path string) {
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(c.out, "! cannot read %s: %v\n", path, err)
		return
	}
	defer f.Close()

	if err := c.engine.Upload(ctx, filepath.Base(path), f); err != nil {
		fmt.Fprintf(c.out, "! upload %s: %v\n", filepath.Base(path), err)
		return
	}
	fmt.Fprintf(c.out, "* uploaded %s\n", filepath.Base(path))
}

// Run executes the command loop until EOF or the quit command.
func (c *Console) Run(ctx context.Context) error {
	fmt.Fprintln(c.out, `CloudDrive console. Type "help" for commands.`)
	for {
		fmt.Fprint(c.out, "> ")
		if !c.in.Scan() {
			return c.in.Err()
		}
		line := strings.TrimSpace(c.in.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd, args := fields[0], fields[1:]

		if cmd == "quit" || cmd == "exit" {
			return nil
		}
		if err := c.dispatch(ctx, cmd, args, line); err != nil {
			fmt.Fprintf(c.out, "! %v\n", err)
		}
	}
}

func (c *Console) dispatch(ctx context.Context, cmd string, args []string, line string) error {
	switch cmd {
	case "help":
		c.printHelp()
		return nil
	case "register":
		return c.cmdRegister(ctx, args)
	case "login":
		return c.cmdLogin(ctx, args)
	case "logout":
		c.engine.Reset()
		c.api.Logout()
		if c.sessions != nil {
			c.sessions.Delete()
		}
		fmt.Fprintln(c.out, "Logged out.")
		return nil
	case "ls":
		return c.cmdList()
	case "refresh":
		return c.engine.Refresh(ctx)
	case "filter":
		return c.cmdFilter(args)
	case "sort":
		return c.cmdSort(args)
	case "select":
		return c.cmdSelect(ctx, args)
	case "set":
		return c.cmdSet(line)
	case "save":
		return c.engine.SaveContent(ctx, c.currentBuffer())
	case "upload":
		return c.cmdUpload(ctx, args)
	case "download":
		return c.cmdDownload(ctx, args)
	case "rm":
		return c.engine.DeleteOrRevoke(ctx, c)
	case "share":
		return c.cmdShare(ctx, args)
	default:
		return fmt.Errorf("unknown command %q, try help", cmd)
	}
}

func (c *Console) printHelp() {
	fmt.Fprint(c.out, `Commands:
  register <user> <password>   create an account
  login <user> <password>      log in and load the catalog
  logout                       drop the session
  ls                           list files
  refresh                      reload the catalog
  filter on|off                toggle the extension filter
  sort none|asc|desc           set the sort mode
  select <#|storage_name>      select a file and preview it
  set <text>                   replace the editor content (marks dirty)
  save                         save the editor content
  upload <path>                upload a local file
  download <#|storage_name>    download the selected file
  rm                           delete the selection (or revoke access)
  share <user> read|write      share the selected file
  quit
`)
}

func (c *Console) cmdRegister(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: register <user> <password>")
	}
	if err := c.api.Register(ctx, args[0], args[1]); err != nil {
		if errors.Is(err, client.ErrUserExists) {
			return fmt.Errorf("username %q is taken", args[0])
		}
		return err
	}
	fmt.Fprintln(c.out, "Registered. Now: login", args[0], "<password>")
	return nil
}

func (c *Console) cmdLogin(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: login <user> <password>")
	}
	token, err := c.api.Login(ctx, args[0], args[1])
	if err != nil {
		if errors.Is(err, client.ErrInvalidCredentials) {
			return errors.New("invalid credentials")
		}
		return err
	}

	if c.sessions != nil {
		err := c.sessions.Save(&session.Credentials{
			Token:    token,
			Username: args[0],
			Server:   c.api.BaseURL(),
		})
		if err != nil {
			fmt.Fprintf(c.out, "! could not persist session: %v\n", err)
		}
	}

	return c.engine.Refresh(ctx)
}

func (c *Console) cmdList() error {
	view := c.engine.View()
	if len(view) == 0 {
		fmt.Fprintln(c.out, "(no files)")
		return nil
	}
	for i, rec := range view {
		marker := " "
		if sel, ok := c.engine.Selected(); ok && sel.StorageName == rec.StorageName {
			marker = "*"
		}
		fmt.Fprintf(c.out, "%s %2d  %-30s %8d  %-5s  by %s\n",
			marker, i+1, rec.Filename, rec.Size, rec.AccessType, rec.Uploader)
	}
	return nil
}

func (c *Console) cmdFilter(args []string) error {
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		return errors.New("usage: filter on|off")
	}
	c.engine.SetFilter(args[0] == "on")
	return c.cmdList()
}

func (c *Console) cmdSort(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: sort none|asc|desc")
	}
	mode, err := engine.ParseSortMode(args[0])
	if err != nil {
		return err
	}
	c.engine.SetSort(mode)
	return c.cmdList()
}

// resolveTarget accepts either a 1-based index into the current view or a
// storage name.
func (c *Console) resolveTarget(arg string) (string, error) {
	view := c.engine.View()
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(view) {
			return "", fmt.Errorf("no file #%d", n)
		}
		return view[n-1].StorageName, nil
	}
	return arg, nil
}

func (c *Console) cmdSelect(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: select <#|storage_name>")
	}
	target, err := c.resolveTarget(args[0])
	if err != nil {
		return err
	}
	actions, err := c.engine.Select(ctx, target)
	if err != nil {
		return err
	}

	var available []string
	if actions.Download {
		available = append(available, "download")
	}
	if actions.Remove != engine.RemoveNone {
		available = append(available, "rm")
	}
	if actions.Share {
		available = append(available, "share")
	}
	if actions.Edit {
		available = append(available, "set/save")
	}
	fmt.Fprintf(c.out, "Selected. Available: %s\n", strings.Join(available, ", "))
	return nil
}

func (c *Console) cmdSet(line string) error {
	if c.engine.State() != engine.StateEditingClean &&
		c.engine.State() != engine.StateEditingDirty {
		return errors.New("nothing editable is selected")
	}
	_, rest, _ := strings.Cut(line, " ")
	c.mu.Lock()
	c.buffer = rest
	c.mu.Unlock()
	c.engine.MarkDirty()
	return nil
}

func (c *Console) currentBuffer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffer
}

func (c *Console) cmdUpload(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: upload <path>")
	}
	c.uploadPath(ctx, args[0])
	return nil
}

func (c *Console) cmdDownload(ctx context.Context, args []string) error {
	if len(args) > 0 {
		target, err := c.resolveTarget(args[0])
		if err != nil {
			return err
		}
		if _, err := c.engine.Select(ctx, target); err != nil {
			return err
		}
	}

	rc, filename, err := c.engine.Download(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()

	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(f, rc); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Saved %s\n", filename)
	return nil
}

func (c *Console) cmdShare(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: share <user> read|write")
	}
	level := protocol.ShareLevel(args[1])
	if !level.Valid() {
		return errors.New("level must be read or write")
	}
	return c.engine.Share(ctx, args[0], level)
}
