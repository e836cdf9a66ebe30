package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"
)

func analyzersCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyzers",
		Short: "Manage analyzer backends",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered analyzers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return call(cmd, opts, http.MethodGet, "/analyzers", nil)
		},
	}

	var (
		priority     int
		endpoint     string
		capabilities []string
	)
	register := &cobra.Command{
		Use:   "register <id>",
		Short: "Register an analyzer or refresh its heartbeat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, opts, http.MethodPost, "/analyzers", map[string]interface{}{
				"id":           args[0],
				"priority":     priority,
				"endpoint":     endpoint,
				"capabilities": capabilities,
			})
		},
	}
	register.Flags().IntVar(&priority, "priority", 0, "dispatch priority, lower wins")
	register.Flags().StringVar(&endpoint, "endpoint", "", "analyzer base URL")
	register.Flags().StringSliceVar(&capabilities, "capability", nil, "supported operation, repeatable")
	_ = register.MarkFlagRequired("endpoint")

	remove := &cobra.Command{
		Use:   "remove <id>",
		Short: "Deregister an analyzer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, opts, http.MethodDelete, "/analyzers/"+args[0], nil)
		},
	}

	cmd.AddCommand(list, register, remove)
	return cmd
}

func indexCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "index <projectId>",
		Short: "Rebuild the analyzer index of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("project", args[0])
			if err != nil {
				return err
			}
			return submit(cmd, opts, fmt.Sprintf("/projects/%d/index", id), nil)
		},
	}
}

func analyzeCmd(opts *rootOptions) *cobra.Command {
	var modes []string
	cmd := &cobra.Command{
		Use:   "analyze <launchId>",
		Short: "Start auto analysis of a launch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("launch", args[0])
			if err != nil {
				return err
			}
			return call(cmd, opts, http.MethodPost, fmt.Sprintf("/launches/%d/analyze", id), modesBody(modes))
		},
	}
	cmd.Flags().StringSliceVar(&modes, "mode", nil, "items to analyze: TO_INVESTIGATE, AUTO_ANALYZED, MANUALLY_ANALYZED")
	return cmd
}

func patternsCmd(opts *rootOptions) *cobra.Command {
	var modes []string
	cmd := &cobra.Command{
		Use:   "patterns <launchId>",
		Short: "Run pattern analysis of a launch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("launch", args[0])
			if err != nil {
				return err
			}
			return submit(cmd, opts, fmt.Sprintf("/launches/%d/patterns", id), modesBody(modes))
		},
	}
	cmd.Flags().StringSliceVar(&modes, "mode", nil, "items to analyze: TO_INVESTIGATE, AUTO_ANALYZED, MANUALLY_ANALYZED")
	return cmd
}

func clustersCmd(opts *rootOptions) *cobra.Command {
	var (
		forUpdate    bool
		cleanNumbers bool
		logLines     int
	)
	cmd := &cobra.Command{
		Use:   "clusters <launchId>",
		Short: "Generate log clusters of a launch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("launch", args[0])
			if err != nil {
				return err
			}
			body := map[string]interface{}{
				"forUpdate":    forUpdate,
				"cleanNumbers": cleanNumbers,
			}
			if cmd.Flags().Changed("log-lines") {
				body["numberOfLogLines"] = logLines
			}
			return submit(cmd, opts, fmt.Sprintf("/launches/%d/clusters", id), body)
		},
	}
	cmd.Flags().BoolVar(&forUpdate, "for-update", false, "keep existing clusters and add to them")
	cmd.Flags().BoolVar(&cleanNumbers, "clean-numbers", false, "ignore numbers when comparing messages")
	cmd.Flags().IntVar(&logLines, "log-lines", 0, "log lines to compare, overrides the project setting")
	return cmd
}

func finishCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "finish <launchId>",
		Short: "Notify the server that a launch finished",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("launch", args[0])
			if err != nil {
				return err
			}
			return call(cmd, opts, http.MethodPost, fmt.Sprintf("/launches/%d/finish-hook", id), nil)
		},
	}
}

func similarCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "similar <itemId>",
		Short: "Find logs similar to the error logs of a test item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("item", args[0])
			if err != nil {
				return err
			}
			return call(cmd, opts, http.MethodGet, fmt.Sprintf("/items/%d/similar-logs", id), nil)
		},
	}
}

func suggestCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "suggest <itemId>",
		Short: "List items whose defects could apply to a test item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("item", args[0])
			if err != nil {
				return err
			}
			return call(cmd, opts, http.MethodGet, fmt.Sprintf("/items/%d/suggest", id), nil)
		},
	}
}

func jobCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "job <id>",
		Short: "Show a background job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.wait {
				data, err := opts.client().waitJob(cmd.Context(), args[0], opts.poll)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), data)
			}
			return call(cmd, opts, http.MethodGet, "/jobs/"+args[0], nil)
		},
	}
}

func parseID(name, arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", name, arg)
	}
	return id, nil
}

func modesBody(modes []string) interface{} {
	if len(modes) == 0 {
		return nil
	}
	return map[string]interface{}{"modes": modes}
}

func call(cmd *cobra.Command, opts *rootOptions, method, path string, body interface{}) error {
	data, err := opts.client().do(cmd.Context(), method, path, body)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), data)
}

// submit posts a job request and, with --wait, follows the job to its end.
func submit(cmd *cobra.Command, opts *rootOptions, path string, body interface{}) error {
	client := opts.client()
	data, err := client.do(cmd.Context(), http.MethodPost, path, body)
	if err != nil {
		return err
	}
	if opts.wait {
		var job jobStatus
		if err := json.Unmarshal(data, &job); err != nil {
			return fmt.Errorf("failed to decode job: %w", err)
		}
		if data, err = client.waitJob(cmd.Context(), job.ID, opts.poll); err != nil {
			return err
		}
	}
	return printJSON(cmd.OutOrStdout(), data)
}

func printJSON(w io.Writer, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		_, err = w.Write(data)
		return err
	}
	out.WriteByte('\n')
	_, err := out.WriteTo(w)
	return err
}
