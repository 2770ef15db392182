package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/go-git/go-billy/v5/osfs"

	"github.com/JeffersonLab/ced2gnn/api"
	"github.com/JeffersonLab/ced2gnn/internal/ced"
	"github.com/JeffersonLab/ced2gnn/internal/filter"
	"github.com/JeffersonLab/ced2gnn/internal/hgb"
	"github.com/JeffersonLab/ced2gnn/internal/mya"
	"github.com/JeffersonLab/ced2gnn/internal/node"
	"github.com/JeffersonLab/ced2gnn/internal/snapshot"
)

// run drives the whole pipeline: fetch (or restore) → construct → link →
// assemble, strictly in that order.
func run(ctx context.Context) error {
	cfg, err := api.Load(configPath)
	if err != nil {
		return err
	}
	log := newLogger(cfg.Log, os.Stderr)

	out := outputDir
	if out == "" {
		out = hgb.DirFromDate(".", time.Now().In(mya.FacilityTime()))
	}
	writer := hgb.NewWriter(osfs.New(out), log)
	// Fail on an unwritable output location before any expensive fetch.
	if err := writer.CheckWritable(); err != nil {
		return err
	}
	log.Info("output directory ready", "dir", out)

	pred, err := filter.Compile(cfg.Filter.Expression)
	if err != nil {
		return err
	}

	var (
		list   *node.List
		skips  []node.Skip
		global []mya.WindowData
		tree   *ced.TypeTree
	)
	if fromCache {
		list, global, tree, err = restore(log)
	} else {
		list, skips, global, tree, err = fetch(ctx, cfg, log)
	}
	if err != nil {
		return err
	}

	if list.Len() == 0 {
		return fmt.Errorf("empty node list: did you provide valid dates?")
	}

	// Link each setpoint to its downstream nodes up to and including the
	// next setpoint. Computed once, globally, before any interval filtering.
	list.PopulateLinks()

	written, err := writer.WriteDataSets(list, global, pred)
	if err != nil {
		return err
	}
	log.Info("data sets written", "intervals", written, "nodes", list.Len(), "edges", len(list.Edges()))

	if raw, err := os.ReadFile(configPath); err == nil {
		if err := writer.CopyConfig(raw); err != nil {
			return err
		}
	}
	if err := writer.WriteWarnings(skips); err != nil {
		return err
	}

	if saveCache && !fromCache {
		if err := save(tree, list, global); err != nil {
			return err
		}
		log.Info("snapshot saved", "path", cachePath)
	}

	if loadGraph {
		if err := runLoader(ctx, cfg.Output, out); err != nil {
			return err
		}
	}

	if len(skips) > 0 {
		log.Warn("run completed with skipped elements", "skipped", len(skips))
		exitStatus = 3
	}
	return nil
}

// fetch builds the node list fresh from CED and Mya. The returned tree is
// the lazily grown type hierarchy, handed back so --save-cache can persist
// it.
func fetch(ctx context.Context, cfg *api.Config, log *slog.Logger) (*node.List, []node.Skip, []mya.WindowData, *ced.TypeTree, error) {
	windows, werrs := mya.Plan(cfg.Mya)
	for _, werr := range werrs {
		log.Error("invalid date range", "error", werr)
	}
	if len(windows) == 0 {
		return nil, nil, nil, nil, fmt.Errorf("no valid date ranges configured")
	}

	cedClient := ced.NewClient(cfg.CED, nil)
	tree := ced.NewTypeTree(cedClient, log)

	log.Info("fetching inventory", "zone", cfg.CED.Zone, "types", cfg.CED.Types)
	elements, err := cedClient.Inventory(ctx)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if len(elements) == 0 {
		return nil, nil, nil, nil, fmt.Errorf("inventory query matched no elements")
	}
	log.Info("inventory fetched", "elements", len(elements))

	myaClient := mya.NewClient(cfg.Mya, nil)

	// Global data first; any failure here is fatal, unlike per-node fetches.
	global := make([]mya.WindowData, len(windows))
	for i, w := range windows {
		global[i] = mya.WindowData{Window: w}
	}
	if len(cfg.Mya.Global) > 0 {
		log.Info("fetching global data", "channels", len(cfg.Mya.Global))
		sampler := &mya.Sampler{Client: myaClient, Windows: windows, Channels: cfg.Mya.Global}
		if global, err = sampler.Data(ctx); err != nil {
			return nil, nil, nil, nil, err
		}
	}

	builder := &node.Builder{
		Tree:        tree,
		Config:      cfg.Nodes,
		Windows:     windows,
		Source:      myaClient,
		Parallelism: parallelism,
		Log:         log,
	}
	list, skips, err := builder.Build(ctx, elements)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return list, skips, global, tree, nil
}

// restore rebuilds the node list and global data from the snapshot
// database. Links are recomputed by the caller, never restored.
func restore(log *slog.Logger) (*node.List, []mya.WindowData, *ced.TypeTree, error) {
	store, err := snapshot.Open(cachePath)
	if err != nil {
		return nil, nil, nil, err
	}
	defer func() { _ = store.Close() }()

	var parents map[string][]string
	if err := store.Load(snapshot.SectionTree, &parents); err != nil {
		return nil, nil, nil, err
	}
	tree := ced.NewTypeTree(nil, log)
	tree.Preload(parents)

	var global []mya.WindowData
	if err := store.Load(snapshot.SectionGlobals, &global); err != nil {
		return nil, nil, nil, err
	}

	var nodes []*node.Node
	if err := store.Load(snapshot.SectionNodes, &nodes); err != nil {
		return nil, nil, nil, err
	}
	list := &node.List{}
	for _, n := range nodes {
		list.Append(n)
	}
	log.Info("snapshot restored", "path", cachePath, "nodes", list.Len(), "windows", len(global))
	return list, global, tree, nil
}

// save persists the run's fetched data for later --from-cache runs.
func save(tree *ced.TypeTree, list *node.List, global []mya.WindowData) error {
	store, err := snapshot.Open(cachePath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Save(snapshot.SectionTree, tree.Snapshot()); err != nil {
		return err
	}
	if err := store.Save(snapshot.SectionNodes, list.Nodes()); err != nil {
		return err
	}
	return store.Save(snapshot.SectionGlobals, global)
}

// runLoader hands the finished output tree to the external graph loader.
func runLoader(ctx context.Context, cfg api.Output, out string) error {
	if len(cfg.LoaderCommand) == 0 {
		return fmt.Errorf("--load-graph requires output.loader_command in the config")
	}
	args := append(append([]string(nil), cfg.LoaderCommand[1:]...), out)
	loader := exec.CommandContext(ctx, cfg.LoaderCommand[0], args...)
	loader.Stdout = os.Stdout
	loader.Stderr = os.Stderr
	if err := loader.Run(); err != nil {
		return fmt.Errorf("graph loader: %w", err)
	}
	return nil
}
