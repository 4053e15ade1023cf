package ops

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/go-lynx/hive/finder"
)

func newGroupsCmd(o *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List the groups that registered instances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rd, closeFn := o.redis()
			defer closeFn()

			groups, err := finder.ReadGroups(cmd.Context(), rd)
			if err != nil {
				return fmt.Errorf("read groups: %w", err)
			}
			for _, g := range groups {
				fmt.Fprintln(cmd.OutOrStdout(), g)
			}
			return nil
		},
	}
}

func newServicesCmd(o *Options) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:     "services <serviceName>",
		Short:   "List the instances of a service",
		Example: `  hive services orders --namespace dev`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rd, closeFn := o.redis()
			defer closeFn()

			instances, err := finder.ReadInstances(cmd.Context(), rd, o.groupKey(), args[0])
			if err != nil {
				return fmt.Errorf("read instances: %w", err)
			}
			p := o.printer()
			now := time.Now()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "INSTANCE\tADDRESS\tWEIGHT\tNODE\tUPDATED\tSTATE")
			for _, ins := range instances {
				alive := ins.Alive(now)
				if !alive && !all {
					continue
				}
				state := p.green("alive")
				if !alive {
					state = p.red("expired")
				}
				updated := now.Sub(time.UnixMilli(ins.Metadata.UpdateTm)).Truncate(time.Second)
				fmt.Fprintf(w, "%s\t%s:%d\t%s\t%s\t%s ago\t%s\n",
					ins.InstanceID, ins.IP, ins.Port,
					strconv.FormatFloat(ins.Weight, 'f', -1, 64),
					ins.Metadata.NodeName, updated, state)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include expired instances")
	return cmd
}

func newConfigCmd(o *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read distributed configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get <dataId>",
		Short: "Print a config blob",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rd, closeFn := o.redis()
			defer closeFn()

			raw, err := finder.ReadConfig(cmd.Context(), rd, o.groupKey(), args[0])
			if err != nil {
				return fmt.Errorf("read config: %w", err)
			}
			if raw == nil {
				return fmt.Errorf("config [%s] not found in %s", args[0], finder.ConfigKey(o.groupKey()))
			}
			var buf bytes.Buffer
			if err := json.Indent(&buf, raw, "", "  "); err != nil {
				return fmt.Errorf("config [%s] is not valid json: %w", args[0], err)
			}
			buf.WriteByte('\n')
			_, err = buf.WriteTo(cmd.OutOrStdout())
			return err
		},
	})
	return cmd
}
