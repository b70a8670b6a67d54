package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vyasoai/relay/envelope"
)

func newSubmitCmd(a *app) *cobra.Command {
	var (
		text    string
		file    string
		source  string
		appName string
		pointer string
		tags    []string
		privacy string
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Capture content and deliver it, buffering when the daemon is down",
		Example: `  relayctl submit --text "meeting notes" --tag title:Notes
  relayctl submit --file ./draft.md --app vscode`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			content, err := readContent(cmd.InOrStdin(), text, file)
			if err != nil {
				return err
			}

			opts := []envelope.Option{envelope.WithTags(tags...)}
			if pointer != "" {
				opts = append(opts, envelope.WithContentPointer(pointer))
			} else if file != "" {
				opts = append(opts, envelope.WithContentPointer(file))
			}
			if privacy != "" {
				flag := envelope.PrivacyFlag(privacy)
				if !flag.Valid() {
					return fmt.Errorf("invalid --privacy %q", privacy)
				}
				opts = append(opts, envelope.WithPrivacy(flag))
			}
			env := envelope.New(source, appName, content, opts...)

			r, closeFn, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			outcome, err := r.Submit(cmd.Context(), env)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "%s %s\n", env.EventID, outcome)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&text, "text", "", "content to capture")
	f.StringVar(&file, "file", "", "read content from file (- for stdin)")
	f.StringVar(&source, "source", "relayctl", "capture source")
	f.StringVar(&appName, "app", "terminal", "application the content came from")
	f.StringVar(&pointer, "pointer", "", "content pointer (defaults to --file)")
	f.StringSliceVar(&tags, "tag", nil, "tag to attach, repeatable")
	f.StringVar(&privacy, "privacy", "", "privacy flag: default, sensitive or never_store")
	cmd.MarkFlagsMutuallyExclusive("text", "file")
	return cmd
}

func readContent(stdin io.Reader, text, file string) ([]byte, error) {
	switch {
	case text != "":
		return []byte(text), nil
	case file == "-":
		return io.ReadAll(stdin)
	case file != "":
		return os.ReadFile(file)
	default:
		return nil, errors.New("one of --text or --file is required")
	}
}
