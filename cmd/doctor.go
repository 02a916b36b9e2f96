package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gorilla/websocket"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/groupcast/groupcast/internal/config"
	"github.com/groupcast/groupcast/internal/store"
	"github.com/groupcast/groupcast/internal/store/migrations"
)

const doctorDialTimeout = 5 * time.Second

type check struct {
	Name   string
	Status string
	Detail string
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, bridge connectivity and storage health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor(os.Stdout)
		},
	}
}

func runDoctor(w io.Writer) {
	fmt.Fprintln(w, "groupcast doctor")
	fmt.Fprintf(w, "  Version:  %s\n", Version)
	fmt.Fprintf(w, "  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(w, "  Go:       %s\n", runtime.Version())
	fmt.Fprintln(w)

	var checks []check

	cfgPath := resolveConfigPath()
	if _, err := os.Stat(cfgPath); err != nil {
		checks = append(checks, check{"Config file", "MISSING", cfgPath + " (using defaults)"})
	} else {
		checks = append(checks, check{"Config file", "OK", cfgPath})
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		checks = append(checks, check{"Config", "FAIL", err.Error()})
		printChecks(w, checks)
		return
	}
	checks = append(checks, check{"Config", "OK", "valid"})

	ctx, cancel := context.WithTimeout(context.Background(), doctorDialTimeout)
	defer cancel()
	checks = append(checks, checkBridge(ctx, cfg.Bridge))
	checks = append(checks, checkStorage(cfg))
	checks = append(checks, checkTelemetry(cfg.Telemetry))

	printChecks(w, checks)
}

func checkBridge(ctx context.Context, b config.BridgeConfig) check {
	header := http.Header{}
	if b.Token != "" {
		header.Set("Authorization", "Bearer "+b.Token)
	}
	dialer := websocket.Dialer{HandshakeTimeout: doctorDialTimeout}
	conn, _, err := dialer.DialContext(ctx, b.URL, header)
	if err != nil {
		return check{"Bridge", "FAIL", fmt.Sprintf("%s: %v", b.URL, err)}
	}
	_ = conn.Close()
	return check{"Bridge", "OK", b.URL}
}

func checkStorage(cfg *config.Config) check {
	sc := storeConfig(cfg)
	if sc.Driver == store.DriverNone {
		return check{"Storage", "OFF", "audit log disabled"}
	}
	dsn, err := sc.DSN()
	if err != nil {
		return check{"Storage", "FAIL", err.Error()}
	}
	st, err := migrations.Check(sc.Driver, dsn)
	switch {
	case err != nil:
		return check{"Storage", "FAIL", fmt.Sprintf("%s: %v", sc.Driver, err)}
	case st.Err() != nil:
		return check{"Storage", "FAIL", fmt.Sprintf("%v (%s)", st.Err(), st.Hint())}
	case st.NeedsMigration():
		return check{"Storage", "WARN", fmt.Sprintf("%s schema v%d (%s)", sc.Driver, st.CurrentVersion, st.Hint())}
	default:
		return check{"Storage", "OK", fmt.Sprintf("%s schema v%d", sc.Driver, st.CurrentVersion)}
	}
}

func checkTelemetry(t config.TelemetryConfig) check {
	if !t.Enabled {
		return check{"Telemetry", "OFF", "tracing disabled"}
	}
	return check{"Telemetry", "OK", fmt.Sprintf("%s via %s", t.Endpoint, t.Protocol)}
}

func printChecks(w io.Writer, checks []check) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Check", "Status", "Detail"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, c := range checks {
		table.Append([]string{c.Name, c.Status, c.Detail})
	}
	table.Render()
}
