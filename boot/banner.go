package boot

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/go-kratos/kratos/v2/config"

	"github.com/go-lynx/hive/conf"
)

//go:embed banner.txt
var defaultBanner []byte

// printBanner writes the startup banner unless hive.closeBanner is set. A
// banner.txt next to the configuration replaces the embedded one.
func printBanner(w io.Writer, cfg config.Config, confPath string) error {
	closed, _ := cfg.Value(conf.RootKey + ".closeBanner").Bool()
	if closed {
		return nil
	}
	data := defaultBanner
	if local, err := os.ReadFile(filepath.Join(configDir(confPath), "banner.txt")); err == nil {
		data = local
	}
	if _, err := fmt.Fprintln(w, color.CyanString("%s", data)); err != nil {
		return fmt.Errorf("failed to display banner: %w", err)
	}
	return nil
}

func configDir(path string) string {
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		return path
	}
	return filepath.Dir(path)
}
