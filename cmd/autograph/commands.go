package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/autograph-dev/autograph/flow"
	"github.com/autograph-dev/autograph/flow/backend"
)

func newCompileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compile FLOW",
		Short: "Compile a flow document and print the generated source",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			f, err := loadFlow(args[0])
			if err != nil {
				return err
			}
			prog, err := flow.Compile(f, flow.Builtins())
			if err != nil {
				return err
			}
			fmt.Print(prog.Source)
			return nil
		},
	}
}

func newRunCmd() *cobra.Command {
	var (
		inputJSON   string
		backendName string
		workers     int
	)

	cmd := &cobra.Command{
		Use:   "run FLOW",
		Short: "Execute a flow document and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogger()

			f, err := loadFlow(args[0])
			if err != nil {
				return err
			}
			prog, err := flow.Compile(f, flow.Builtins())
			if err != nil {
				return err
			}

			var input any
			if inputJSON != "" {
				if input, err = flow.DecodeValue([]byte(inputJSON)); err != nil {
					return fmt.Errorf("invalid --input: %w", err)
				}
			}

			b, err := backend.Select(flow.Hint(backendName))
			if err != nil {
				return err
			}
			eng := flow.New(b, flow.WithWorkers(workers))

			res, err := eng.Execute(cmd.Context(), prog, input)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&inputJSON, "input", "", "run input as JSON")
	cmd.Flags().StringVar(&backendName, "backend", "auto", "execution backend (cpu, gpu, auto)")
	cmd.Flags().IntVar(&workers, "workers", 4, "execution concurrency")
	return cmd
}

func newKindsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List the registered node kinds",
		RunE: func(_ *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tCATEGORY\tDESCRIPTION")
			for _, k := range flow.Builtins().Kinds() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", k.Name, k.Category, k.Description)
			}
			return w.Flush()
		},
	}
}
