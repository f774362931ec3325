package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	"github.com/urfave/cli/v2"
)

// statsCmd renders a live terminal dashboard of collector event counters by
// polling the management API's /counters endpoint.
func statsCmd() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Live terminal dashboard of collector counters",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Management API base URL",
				Value: "http://localhost:8080",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Poll interval",
				Value: 2 * time.Second,
			},
		},
		Action: func(c *cli.Context) error {
			return runStatsDashboard(c.String("addr"), c.Duration("interval"))
		},
	}
}

type countersResponse struct {
	Counters map[string]uint64 `json:"counters"`
}

func fetchCounters(baseAddr string) (map[string]uint64, error) {
	resp, err := http.Get(baseAddr + "/counters")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out countersResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Counters, nil
}

func runStatsDashboard(addr string, interval time.Duration) error {
	if err := ui.Init(); err != nil {
		return fmt.Errorf("stats: termui init: %w", err)
	}
	defer ui.Close()

	list := widgets.NewList()
	list.Title = "Event Counters"
	list.SetRect(0, 0, 80, 30)

	draw := func() {
		counters, err := fetchCounters(addr)
		if err != nil {
			list.Rows = []string{fmt.Sprintf("fetch error: %v", err)}
			ui.Render(list)
			return
		}

		keys := make([]string, 0, len(counters))
		for k := range counters {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		rows := make([]string, 0, len(keys))
		for _, k := range keys {
			rows = append(rows, fmt.Sprintf("%-30s %d", k, counters[k]))
		}
		list.Rows = rows
		ui.Render(list)
	}

	draw()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()
	for {
		select {
		case e := <-uiEvents:
			switch e.ID {
			case "q", "<C-c>":
				return nil
			}
		case <-ticker.C:
			draw()
		}
	}
}
