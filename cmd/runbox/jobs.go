package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/runbox/internal/storage"
)

var limitFlag int

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List recent compile/run jobs",
	RunE:  runJobs,
}

func init() {
	jobsCmd.Flags().IntVar(&limitFlag, "limit", 20, "Maximum number of jobs to show")
	rootCmd.AddCommand(jobsCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	resp, err := http.Get(fmt.Sprintf("%s/api/jobs?limit=%d", serverFlag, limitFlag))
	if err != nil {
		return fmt.Errorf("contacting server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", resp.Status)
	}

	var jobs []storage.Job
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TOKEN\tLANG\tENTRY\tOK\tEXIT\tCREATED")
	for _, j := range jobs {
		exit := "-"
		if j.ExitCode != nil {
			exit = fmt.Sprintf("%d", *j.ExitCode)
		}
		token := j.Token
		if len(token) > 8 {
			token = token[:8]
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\t%s\n",
			token, j.Language, j.EntryPoint, j.OK, exit,
			j.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
