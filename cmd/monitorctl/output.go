package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"sigs.k8s.io/yaml"
)

// IssueInfo represents one detected issue in check results.
type IssueInfo struct {
	Cluster   string `json:"cluster"`
	Namespace string `json:"namespace"`
	Pod       string `json:"pod"`
	Container string `json:"container,omitempty"`
	Kind      string `json:"kind"`
	Severity  string `json:"severity"`
	Summary   string `json:"summary"`
}

// ClusterCheck summarizes one cluster's detection pass.
type ClusterCheck struct {
	Cluster     string `json:"cluster"`
	PodsScanned int    `json:"podsScanned"`
	IssueCount  int    `json:"issueCount"`
	Error       string `json:"error,omitempty"`
}

// CheckResult is the result of a check command.
type CheckResult struct {
	Clusters []ClusterCheck `json:"clusters"`
	Issues   []IssueInfo    `json:"issues"`
	Total    int            `json:"total"`
}

// ClusterInfo describes one configured cluster.
type ClusterInfo struct {
	Name       string   `json:"name"`
	Kubeconfig string   `json:"kubeconfig"`
	Namespaces []string `json:"namespaces"`
}

// InfoResult is the result of an info command.
type InfoResult struct {
	Clusters         []ClusterInfo `json:"clusters"`
	CheckInterval    string        `json:"checkInterval"`
	Cooldown         string        `json:"cooldown"`
	RestartThreshold int           `json:"restartThreshold"`
	DiagnosisEnabled bool          `json:"diagnosisEnabled"`
	DiagnosisModel   string        `json:"diagnosisModel,omitempty"`
	SlackEnabled     bool          `json:"slackEnabled"`
	SlackChannel     string        `json:"slackChannel,omitempty"`
}

// outputResult outputs the result in the specified format.
func outputResult(result interface{}, format string) error {
	switch format {
	case "json":
		return outputJSON(result)
	case "yaml":
		return outputYAML(result)
	default:
		return outputTable(result)
	}
}

func outputJSON(result interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func outputYAML(result interface{}) error {
	data, err := yaml.Marshal(result)
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func outputTable(result interface{}) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	switch r := result.(type) {
	case CheckResult:
		return outputCheckTable(w, r)
	case InfoResult:
		return outputInfoTable(w, r)
	default:
		// Fall back to JSON for unknown types
		return outputJSON(result)
	}
}

func outputCheckTable(w *tabwriter.Writer, r CheckResult) error {
	fmt.Fprintln(w, "CLUSTER\tPODS\tISSUES\tERROR")
	for _, c := range r.Clusters {
		errMsg := c.Error
		if errMsg == "" {
			errMsg = "-"
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", c.Cluster, c.PodsScanned, c.IssueCount, errMsg)
	}

	if len(r.Issues) > 0 {
		fmt.Fprintln(w, "\nCLUSTER\tNAMESPACE\tPOD\tCONTAINER\tKIND\tSEVERITY\tSUMMARY")
		for _, i := range r.Issues {
			container := i.Container
			if container == "" {
				container = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				i.Cluster, i.Namespace, i.Pod, container, i.Kind, i.Severity, i.Summary)
		}
	}

	return nil
}

func outputInfoTable(w *tabwriter.Writer, r InfoResult) error {
	fmt.Fprintf(w, "CHECK INTERVAL:\t%s\n", r.CheckInterval)
	fmt.Fprintf(w, "COOLDOWN:\t%s\n", r.Cooldown)
	fmt.Fprintf(w, "RESTART THRESHOLD:\t%d\n", r.RestartThreshold)
	fmt.Fprintf(w, "DIAGNOSIS:\t%s\n", enabledLabel(r.DiagnosisEnabled, r.DiagnosisModel))
	fmt.Fprintf(w, "SLACK:\t%s\n\n", enabledLabel(r.SlackEnabled, r.SlackChannel))

	fmt.Fprintln(w, "CLUSTER\tKUBECONFIG\tNAMESPACES")
	for _, c := range r.Clusters {
		namespaces := "all"
		if len(c.Namespaces) > 0 {
			namespaces = ""
			for i, ns := range c.Namespaces {
				if i > 0 {
					namespaces += ","
				}
				namespaces += ns
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.Name, c.Kubeconfig, namespaces)
	}

	return nil
}

func enabledLabel(enabled bool, detail string) string {
	if !enabled {
		return "disabled"
	}
	if detail == "" {
		return "enabled"
	}
	return fmt.Sprintf("enabled (%s)", detail)
}
