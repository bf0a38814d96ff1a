package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"depmend/internal/types"
)

type auditOptions struct {
	Type string
	JSON bool
}

func newAuditCommand() *cobra.Command {
	opts := auditOptions{}
	cmd := &cobra.Command{
		Use:   "audit [correlation-id]",
		Short: "Inspect the append-only audit trail",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(opts, args)
		},
	}
	cmd.Flags().StringVar(&opts.Type, "type", "", "Only show events of this type")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Emit raw JSON lines")
	return cmd
}

func runAudit(opts auditOptions, args []string) error {
	service, trail, err := newAppService()
	if err != nil {
		return err
	}
	defer trail.Close()

	var events []types.AuditEvent
	if len(args) == 1 {
		events, err = service.Audit.Query(args[0])
	} else {
		events, err = service.Audit.All()
	}
	if err != nil {
		return err
	}

	shown := 0
	for _, event := range events {
		if opts.Type != "" && string(event.Type) != opts.Type {
			continue
		}
		shown++
		if opts.JSON {
			line, err := json.Marshal(event)
			if err != nil {
				return err
			}
			fmt.Println(string(line))
			continue
		}
		fmt.Printf("%6d  %s  %-28s %-12s %s\n",
			event.Sequence,
			event.Timestamp.Format("2006-01-02T15:04:05Z"),
			event.Type,
			event.Actor,
			shortCorrelation(event.CorrelationID),
		)
		keys := make([]string, 0, len(event.Payload))
		for key := range event.Payload {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Printf("        %s=%s\n", key, event.Payload[key])
		}
	}
	if shown == 0 {
		fmt.Println("no matching audit events")
	}
	return nil
}

func shortCorrelation(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
