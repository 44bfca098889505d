// Package cli is a terminal front end over the popup controller, mirroring
// the tabs and actions of the extension popup.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tibco87/clipsmart/internal/common"
	"github.com/tibco87/clipsmart/internal/popup/app"
	"github.com/tibco87/clipsmart/internal/popup/items"
	"github.com/tibco87/clipsmart/internal/popup/models"
)

const helpText = `Commands:
  recent [query]        show recent items
  pinned [query]        show pinned items
  sort <order>          set sort order (newest|oldest|az|za|longest|shortest)
  tag <id> <tag>        add a tag
  untag <id> <tag>      remove a tag
  pin <id>              toggle pin
  del <id>              delete an item
  clear                 delete all items
  translate <id> <lang> translate an item
  keep <text>           pin a translation result
  export <json|csv>     export the collection to stdout
  quota                 show this month's translation usage
  plans                 list available plans
  upgrade               open the checkout page
  trial                 open the free-trial page
  login                 reattach an existing subscription
  exit | quit           leave`

// Run reads commands from in and dispatches them to the controller until EOF
// or an exit command. Command errors are printed and the loop continues.
func Run(ctx context.Context, a *app.App, in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprintf(out, "%s> ", status(a))
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		cmd, args := fields[0], fields[1:]
		if cmd == "exit" || cmd == "quit" {
			return
		}
		if err := dispatch(ctx, a, out, cmd, args); err != nil {
			printError(out, err)
		}
	}
}

func status(a *app.App) string {
	if a.Entitled() {
		return "pro"
	}
	return "free"
}

func dispatch(ctx context.Context, a *app.App, out io.Writer, cmd string, args []string) error {
	switch cmd {
	case "help":
		fmt.Fprintln(out, helpText)
	case "recent":
		printView(out, a.RecentView(strings.Join(args, " ")))
	case "pinned":
		printView(out, a.PinnedView(strings.Join(args, " ")))
	case "sort":
		if len(args) != 1 {
			return errors.New("usage: sort <order>")
		}
		return a.SetSortOrder(ctx, items.SortOrder(args[0]))
	case "tag":
		if len(args) != 2 {
			return errors.New("usage: tag <id> <tag>")
		}
		return a.AddTag(ctx, args[0], args[1])
	case "untag":
		if len(args) != 2 {
			return errors.New("usage: untag <id> <tag>")
		}
		return a.RemoveTag(ctx, args[0], args[1])
	case "pin":
		if len(args) != 1 {
			return errors.New("usage: pin <id>")
		}
		pinned, err := a.TogglePin(ctx, args[0])
		if err != nil {
			return err
		}
		if pinned {
			fmt.Fprintln(out, "pinned")
		} else {
			fmt.Fprintln(out, "unpinned")
		}
	case "del":
		if len(args) != 1 {
			return errors.New("usage: del <id>")
		}
		return a.Delete(ctx, args[0])
	case "clear":
		return a.ClearAll(ctx)
	case "translate":
		if len(args) != 2 {
			return errors.New("usage: translate <id> <lang>")
		}
		translation, err := a.Translate(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(out, translation)
	case "keep":
		if len(args) == 0 {
			return errors.New("usage: keep <text>")
		}
		item, err := a.PinTranslation(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "pinned %s\n", item.ID)
	case "export":
		format := app.ExportJSON
		if len(args) == 1 {
			format = app.ExportFormat(args[0])
		}
		return a.Export(ctx, out, format)
	case "quota":
		used, err := a.TranslationsUsed(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d translations used this month\n", used)
	case "plans":
		raw, err := a.Plans(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\n", raw)
	case "upgrade":
		return a.Upgrade(ctx)
	case "trial":
		return a.StartTrial(ctx, "")
	case "login":
		return a.ManageSubscription(ctx)
	default:
		fmt.Fprintf(out, "unknown command %q, try help\n", cmd)
	}
	return nil
}

func printView(out io.Writer, v app.View) {
	for _, item := range v.Items {
		printItem(out, item)
	}
	if v.Overflow > 0 {
		fmt.Fprintf(out, "... %d more items available with Pro\n", v.Overflow)
	}
}

func printItem(out io.Writer, item models.ClipboardItem) {
	marker := " "
	if item.Pinned {
		marker = "*"
	}
	line := fmt.Sprintf("%s %s  %s  %s", marker, item.ID, items.FormatTimestamp(item.Timestamp), item.Text)
	if item.Tags.Len() > 0 {
		line += "  [" + strings.Join(item.Tags.Slice(), ", ") + "]"
	}
	fmt.Fprintln(out, line)
}

func printError(out io.Writer, err error) {
	switch {
	case errors.Is(err, common.ErrEntitlementRequired):
		fmt.Fprintln(out, "This is a Pro feature. Run `upgrade` to unlock it.")
	case errors.Is(err, common.ErrQuotaExceeded):
		fmt.Fprintln(out, "Monthly translation limit reached. Run `upgrade` for unlimited translations.")
	case errors.Is(err, common.ErrorNotFound):
		fmt.Fprintln(out, "No such item.")
	default:
		fmt.Fprintf(out, "error: %v\n", err)
	}
}

// StdoutOpener satisfies app.PageOpener for the terminal: it prints the URL
// for the user to open.
type StdoutOpener struct{}

func (StdoutOpener) OpenPage(ctx context.Context, url string) error {
	_, err := fmt.Fprintf(os.Stdout, "open this page in your browser: %s\n", url)
	return err
}
