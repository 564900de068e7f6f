package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"go.yaml.in/yaml/v3"

	"github.com/nhle/coordination/internal/coordination"
	"github.com/nhle/coordination/internal/model"
	"github.com/nhle/coordination/internal/notify"
	"github.com/nhle/coordination/internal/sync"
)

// outputResult writes result in the given format.
func outputResult(w io.Writer, result interface{}, format string) error {
	switch format {
	case "json":
		return outputJSON(w, result)
	case "yaml":
		return outputYAML(w, result)
	default:
		return outputTable(w, result)
	}
}

func outputJSON(w io.Writer, result interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// outputYAML goes through JSON first so field names match the json tags.
func outputYAML(w io.Writer, result interface{}) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return err
	}
	out, err := yaml.Marshal(generic)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

func outputTable(out io.Writer, result interface{}) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	switch r := result.(type) {
	case []model.Trigger:
		fmt.Fprintln(w, "ID\tRULE\tTARGET\tENTITY\tLEVEL\tSEVERITY\tSTATUS\tCREATED")
		for _, t := range r {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
				t.ID, t.RuleID, t.TargetUserID, dash(t.RelatedEntityID),
				t.EscalationLevel, t.Severity, t.Status, t.CreatedAt.Format("2006-01-02 15:04"))
		}
	case []model.Notification:
		fmt.Fprintln(w, "ID\tSEVERITY\tTITLE\tTRIGGER\tCREATED")
		for _, n := range r {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				n.ID, n.Severity, n.Title, n.TriggerID, n.CreatedAt.Format("2006-01-02 15:04"))
		}
	case []ruleInfo:
		fmt.Fprintln(w, "RULE\tEVENT\tCATEGORY\tCOOLDOWN\tNOTIFIABLE")
		for _, ri := range r {
			fmt.Fprintf(w, "%s\t%s\t%s\t%dm\t%t\n", ri.ID, ri.Event, ri.Category, ri.CooldownMinutes, ri.Notifiable)
		}
	case *coordination.ProcessResult:
		fmt.Fprintf(w, "Events:\t%d\nResolved:\t%d\nCreated:\t%d\nSuppressed:\t%d\n",
			r.Events, r.Resolved, r.Created, r.Suppressed)
	case *coordination.SweepResult:
		fmt.Fprintf(w, "Evaluated:\t%d\nCreated:\t%d\nSuppressed:\t%d\n",
			r.Evaluated, r.Created, r.Suppressed)
	case *notify.DeliveryResult:
		fmt.Fprintf(w, "Evaluated:\t%d\nSent:\t%d\n", r.Evaluated, r.Sent)
		writeReasons(w, r.Suppressed)
	case *notify.Result:
		if r.Sent {
			fmt.Fprintf(w, "Sent:\tyes\nNotification:\t%s\n", r.NotificationID)
		} else {
			fmt.Fprintf(w, "Sent:\tno\nReason:\t%s\n", r.Reason)
		}
	case *sync.RunResult:
		if r.Process != nil {
			fmt.Fprintf(w, "Processed events:\t%d\nTriggers created:\t%d\n", r.Process.Events, r.Process.Created)
		}
		if r.Sweep != nil {
			fmt.Fprintf(w, "Sweep escalations:\t%d\n", r.Sweep.Created)
		}
		if r.Deliver != nil {
			fmt.Fprintf(w, "Nudges sent:\t%d\n", r.Deliver.Sent)
			writeReasons(w, r.Deliver.Suppressed)
		}
	default:
		// Fall back to JSON for unknown types
		return outputJSON(out, result)
	}
	return nil
}

func writeReasons(w io.Writer, reasons map[notify.Reason]int) {
	keys := make([]string, 0, len(reasons))
	for r := range reasons {
		keys = append(keys, string(r))
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "Suppressed (%s):\t%d\n", strings.ReplaceAll(k, "_", " "), reasons[notify.Reason(k)])
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
