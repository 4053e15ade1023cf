// Package ops implements the hive command line: plugin order inspection and
// read-only queries against a finder store.
package ops

import (
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/go-lynx/hive/finder"
)

// Options holds the persistent flags shared by every subcommand.
type Options struct {
	Addr      string
	Username  string
	Password  string
	DB        int
	Namespace string
	Group     string
	NoColor   bool

	// client overrides the dialed connection in tests.
	client redis.UniversalClient
}

func (o *Options) groupKey() string {
	return finder.GroupKey(o.Namespace, o.Group)
}

func (o *Options) redis() (redis.UniversalClient, func()) {
	if o.client != nil {
		return o.client, func() {}
	}
	c := redis.NewClient(&redis.Options{
		Addr:     o.Addr,
		Username: o.Username,
		Password: o.Password,
		DB:       o.DB,
	})
	return c, func() { _ = c.Close() }
}

// NewRoot builds the hive command tree.
func NewRoot(version string) *cobra.Command {
	return newRoot(version, &Options{})
}

func newRoot(version string, o *Options) *cobra.Command {
	root := &cobra.Command{
		Use:           "hive",
		Short:         "Inspect hive plugin order, services and configuration",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	f := root.PersistentFlags()
	f.StringVar(&o.Addr, "redis", "localhost:6379", "finder redis address")
	f.StringVar(&o.Username, "username", "", "finder redis username")
	f.StringVar(&o.Password, "password", "", "finder redis password")
	f.IntVar(&o.DB, "db", 1, "finder redis database")
	f.StringVar(&o.Namespace, "namespace", finder.DefaultNamespace, "finder namespace")
	f.StringVar(&o.Group, "group", finder.DefaultGroup, "finder group")
	f.BoolVar(&o.NoColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newOrderCmd(o),
		newGroupsCmd(o),
		newServicesCmd(o),
		newConfigCmd(o),
	)
	return root
}
