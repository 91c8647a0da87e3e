package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"kashimo.ai/internal/agent"
	"kashimo.ai/internal/sim/catalogs"
	"kashimo.ai/internal/sim/mathx"
	"kashimo.ai/internal/sim/tuning"
)

func main() {
	var (
		feedDir   = flag.String("feed", "", "feed dir containing feed-*.jsonl.zst")
		configDir = flag.String("configs", "./configs", "config directory")
		from      = flag.String("from", "", "reference point x,y,z (default: last SELF in the log)")
		n         = flag.Int("n", 5, "number of nearest harvestable positions to print")
		cutoff    = flag.Int("shell_cutoff_permille", 0, "override the shell walk cutoff (0 = default)")
	)
	flag.Parse()

	if *feedDir == "" {
		fmt.Fprintln(os.Stderr, "missing -feed")
		os.Exit(2)
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	tune := tuning.Defaults()
	tune.ScanBudgetPerTick = 0
	tune.ShellCutoffPermille = *cutoff

	r := agent.New(agent.Config{Catalogs: cats, Tuning: tune})
	p := agent.NewReplayer(r)
	if err := p.Dir(*feedDir); err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}

	d := r.Tick()
	ref, ok := d.Ref, d.HasRef
	if *from != "" {
		ref, err = parsePoint(*from)
		if err != nil {
			fmt.Fprintln(os.Stderr, "bad -from:", err)
			os.Exit(2)
		}
		ok = true
	}

	reg := r.Registry()
	fmt.Printf("entries=%d sessions=%d sections=%d partitions=%d crops=%d ripe=%d\n",
		p.Entries, p.Sessions, len(r.Store().LoadedKeys()), reg.Len(), reg.CropCount(), reg.HarvestableCount())
	if !ok {
		fmt.Println("no reference point (no SELF logged, no -from)")
		return
	}
	fmt.Printf("nearest from %s:\n", ref)
	for i, pos := range reg.NearestN(ref, *n) {
		fmt.Printf("  %d. %s dist=%.2f\n", i+1, pos, ref.Dist(pos))
	}
}

func parsePoint(s string) (mathx.Vec3f, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return mathx.Vec3f{}, fmt.Errorf("want x,y,z, got %q", s)
	}
	var v [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return mathx.Vec3f{}, err
		}
		v[i] = f
	}
	return mathx.Vec3f{X: v[0], Y: v[1], Z: v[2]}, nil
}
