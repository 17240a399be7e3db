package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"accman/internal/accounts/codec"
)

// convertCommand re-encodes an account file into another format or charset.
func convertCommand() *cobra.Command {
	var (
		to          string
		fromCharset string
		toCharset   string
		output      string
		indent      int
	)
	cmd := &cobra.Command{
		Use:   "convert <file>",
		Short: "Convert an account file between txt and json",
		Long: `Convert reads an account file, picking the parser from its extension,
and writes it in the requested format. Output goes to stdout unless --output
is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := readRecords(args[0], fromCharset)
			if err != nil {
				return err
			}
			format, err := codec.ParseFormat(to)
			if err != nil {
				return err
			}
			charset, err := codec.ParseCharset(toCharset)
			if err != nil {
				return err
			}

			encode := func(w io.Writer) error {
				return codec.Encode(w, records, format, codec.Options{Indent: indent, Charset: charset})
			}
			if output == "" {
				return encode(cmd.OutOrStdout())
			}
			if err := writeOutput(output, encode); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d accounts to %s\n", len(records), output)
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", string(codec.FormatJSON), "output format: json or txt")
	cmd.Flags().StringVar(&fromCharset, "from-charset", string(codec.CharsetUTF8), "charset of the input file")
	cmd.Flags().StringVar(&toCharset, "to-charset", string(codec.CharsetUTF8), "charset of the output")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file")
	cmd.Flags().IntVar(&indent, "indent", codec.DefaultIndent, "indent width")
	return cmd
}

var createFile = func(name string) (io.WriteCloser, error) {
	return os.Create(name)
}

// writeOutput creates path and hands it to fn. A failed Close is reported
// since it can lose buffered data.
func writeOutput(path string, fn func(io.Writer) error) (err error) {
	f, err := createFile(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close output: %w", cerr)
		}
	}()
	return fn(f)
}

// validateCommand parses an account file and reports what an upload would
// create.
func validateCommand() *cobra.Command {
	var charset string
	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Check that account files parse",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var failed int
			for _, path := range args {
				records, err := readRecords(path, charset)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", path, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d accounts\n", path, len(records))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed to parse", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&charset, "charset", string(codec.CharsetUTF8), "charset of the files")
	return cmd
}

func readRecords(path, charsetName string) ([]codec.Record, error) {
	format, err := codec.DetermineFormat(path)
	if err != nil {
		return nil, err
	}
	charset, err := codec.ParseCharset(charsetName)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return codec.Decode(f, format, codec.Options{Charset: charset})
}
