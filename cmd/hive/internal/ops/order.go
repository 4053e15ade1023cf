package ops

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/go-lynx/hive"
	"github.com/go-lynx/hive/boot"
	"github.com/go-lynx/hive/conf"
	"github.com/go-lynx/hive/log"
)

func newOrderCmd(o *Options) *cobra.Command {
	var confPath string
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Print the plugin load order computed from a configuration",
		Example: `  hive order --conf ./configs
  hive order -c config.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := boot.LoadBootstrapConfig(confPath)
			if err != nil {
				return err
			}
			defer cfg.Close()

			var bc conf.Bootstrap
			if err := cfg.Value(conf.RootKey).Scan(&bc); err != nil {
				return fmt.Errorf("scan %s: %w", conf.RootKey, err)
			}
			order, err := hive.OrderPlugins(bc.Plugins, log.GetLogger())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			p := o.printer()
			if len(order) == 0 {
				fmt.Fprintln(out, p.dim("no plugin enabled"))
				return nil
			}
			for i, name := range order {
				item := bc.Plugins[name]
				line := fmt.Sprintf("%2d. %s", i+1, p.bold(name))
				if pkg := item.PackageOr(name); pkg != name {
					line += p.dim(" (" + pkg + ")")
				}
				if len(item.Dependencies) > 0 {
					line += fmt.Sprintf(" <- %v", item.Dependencies)
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&confPath, "conf", "c", boot.GetConfigManager().GetConfigPath(), "config path")
	return cmd
}

type printer struct {
	noColor bool
}

func (o *Options) printer() printer { return printer{noColor: o.NoColor} }

func (p printer) paint(c *color.Color, s string) string {
	if p.noColor {
		return s
	}
	c.EnableColor()
	return c.Sprint(s)
}

func (p printer) bold(s string) string  { return p.paint(color.New(color.Bold), s) }
func (p printer) dim(s string) string   { return p.paint(color.New(color.Faint), s) }
func (p printer) green(s string) string { return p.paint(color.New(color.FgGreen), s) }
func (p printer) red(s string) string   { return p.paint(color.New(color.FgRed), s) }
