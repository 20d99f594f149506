package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"smartai/internal/domain/model"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	timeout   time.Duration
	client    *apiClient
)

var rootCmd = &cobra.Command{
	Use:   "gradectl",
	Short: "Submit and inspect grading jobs",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		client = newAPIClient(serverURL, timeout)
	},
}

var submitCmd = &cobra.Command{
	Use:   "submit batch.json",
	Short: "Submit a grading job from a JSON file (- for stdin)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		body, err := readInput(args[0])
		if err != nil {
			log.Fatalf("Failed to read batch: %v", err)
		}
		if label, _ := cmd.Flags().GetString("label"); label != "" {
			if body, err = withLabel(body, label); err != nil {
				log.Fatalf("Failed to parse batch: %v", err)
			}
		}
		job, err := client.Submit(body)
		if err != nil {
			log.Fatalf("Failed to submit job: %v", err)
		}
		fmt.Printf("Job submitted: %s (%d students)\n", job.ID, len(job.Students))
	},
}

var statusCmd = &cobra.Command{
	Use:   "status job-id",
	Short: "Show job and per-student status",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		job, err := client.Job(args[0])
		if err != nil {
			log.Fatalf("Failed to get job: %v", err)
		}
		printJob(os.Stdout, job)
	},
}

var resultsCmd = &cobra.Command{
	Use:   "results job-id",
	Short: "Print aggregated results as JSON",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		res, err := client.Results(args[0])
		if err != nil {
			log.Fatalf("Failed to get results: %v", err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			log.Fatalf("Failed to print results: %v", err)
		}
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel job-id",
	Short: "Request cancellation of a job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		job, err := client.Cancel(args[0])
		if err != nil {
			log.Fatalf("Failed to cancel job: %v", err)
		}
		fmt.Printf("Job %s is %s\n", job.ID, job.Status)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs, newest first",
	Run: func(cmd *cobra.Command, args []string) {
		limit, err := cmd.Flags().GetInt("limit")
		if err != nil {
			log.Fatalf("failed to get limit flag: %v", err)
		}
		jobs, err := client.List(limit)
		if err != nil {
			log.Fatalf("Failed to list jobs: %v", err)
		}
		if len(jobs) == 0 {
			fmt.Println("No jobs found")
			return
		}
		printSummaries(os.Stdout, jobs)
	},
}

var exportCmd = &cobra.Command{
	Use:   "export job-id",
	Short: "Download results as CSV",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		out, _ := cmd.Flags().GetString("output")
		w := io.Writer(os.Stdout)
		if out != "" && out != "-" {
			f, err := os.Create(out)
			if err != nil {
				log.Fatalf("Failed to create %s: %v", out, err)
			}
			defer f.Close()
			w = f
		}
		if err := client.Export(args[0], w); err != nil {
			log.Fatalf("Failed to export results: %v", err)
		}
	},
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// withLabel overrides the label field of a raw submission body.
func withLabel(body []byte, label string) ([]byte, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(label)
	if err != nil {
		return nil, err
	}
	doc["label"] = raw
	return json.Marshal(doc)
}

func printJob(w io.Writer, job *model.Job) {
	fmt.Fprintf(w, "Job:     %s\n", job.ID)
	if job.Label != "" {
		fmt.Fprintf(w, "Label:   %s\n", job.Label)
	}
	fmt.Fprintf(w, "Status:  %s\n", job.Status)
	if job.CancelRequested {
		fmt.Fprintln(w, "Cancel:  requested")
	}
	fmt.Fprintf(w, "\n%-20s %-12s %-8s %-8s %-8s\n", "STUDENT", "STATUS", "GRADED", "FAILED", "PENDING")
	for _, st := range job.Students {
		var graded, failed, pending int
		for _, q := range st.Questions {
			switch {
			case q.Outcome != nil:
				graded++
			case q.GradingError != nil:
				failed++
			default:
				pending++
			}
		}
		fmt.Fprintf(w, "%-20s %-12s %-8d %-8d %-8d\n", st.StudentID, st.Status, graded, failed, pending)
	}
}

func printSummaries(w io.Writer, jobs []model.JobSummary) {
	fmt.Fprintf(w, "%-36s %-20s %-18s %-8s %-8s %-8s %-25s\n", "ID", "LABEL", "STATUS", "GRADED", "FAILED", "PENDING", "CREATED_AT")
	for _, j := range jobs {
		fmt.Fprintf(w, "%-36s %-20s %-18s %-8d %-8d %-8d %-25s\n",
			j.JobID, j.Label, j.Status, j.Graded, j.Failed, j.Pending, j.CreatedAt.Format(time.RFC3339))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("GRADECTL_SERVER", "http://localhost:8080"), "grading server base URL")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")

	submitCmd.Flags().String("label", "", "override the job label")
	listCmd.Flags().Int("limit", 20, "maximum number of jobs to list (0 for all)")
	exportCmd.Flags().StringP("output", "o", "", "write CSV to file instead of stdout")

	rootCmd.AddCommand(submitCmd, statusCmd, resultsCmd, cancelCmd, listCmd, exportCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
