package hive

// Env describes the running process. It is fixed at boot; the App hands out
// copies only.
type Env struct {
	// ServerID names the application; it is the default service name.
	ServerID    string
	Version     string
	Description string
	// Env is the deployment environment, e.g. "development".
	Env      string
	ProjPath string
	CfgPath  string
	// NodeName overrides the configured node name when set.
	NodeName string
}

// RdCfgKey returns the key of this node's configuration record,
// "cfg:<serverId>:<nodeName>".
func (e Env) RdCfgKey() string {
	return "cfg:" + e.ServerID + ":" + e.NodeName
}
