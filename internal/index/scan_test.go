package index

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"scan-indexer/internal/config"
	"scan-indexer/internal/source"
	"scan-indexer/internal/source/sourcetest"
	"scan-indexer/internal/traversal"
)

const scanRoot = "/auto scan data"

func scanServer() config.ServerConfig {
	return config.ServerConfig{
		Name:     "SCAN01",
		Role:     config.RoleScan,
		Root:     scanRoot,
		MaxDepth: 15,
		Source:   config.SourceLocal,
	}
}

func scanTree() *sourcetest.Tree {
	return sourcetest.NewTree().AddDir(
		scanRoot+"/CLS/W01/LOT1/F01/20240101",
		scanRoot+"/CLS/W01/LOT1/F01/20240102",
		scanRoot+"/CLS/W01/LOT1/F02/2024-03-05",
		scanRoot+"/CLS/W02/LOT1/F03/20240101",
		scanRoot+"/CLS/W01/LOT2/F09",
		scanRoot+"/CLS/EMPTY",
	)
}

func scanTraversal(workers int) traversal.Config {
	cfg := traversal.DefaultScanConfig()
	cfg.Workers = workers
	cfg.ProgressEvery = 0
	return cfg
}

func TestScanBuildFull(t *testing.T) {
	t.Parallel()

	out, err := Build(context.Background(), Job{
		Server:    scanServer(),
		Source:    scanTree(),
		Traversal: scanTraversal(4),
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	wantLots := map[string][]string{
		"LOT1": {scanRoot + "/CLS/W01/LOT1", scanRoot + "/CLS/W02/LOT1"},
		"LOT2": {scanRoot + "/CLS/W01/LOT2"},
	}
	if len(out.Lots.LotsIndex) != len(wantLots) {
		t.Fatalf("Unexpected lots index: %v", out.Lots.LotsIndex)
	}
	for lot, want := range wantLots {
		if got := out.Lots.LotsIndex[lot]; !equalStrings(got, want) {
			t.Errorf("lots_index[%s] = %v, want %v", lot, got, want)
		}
	}

	wantFilms := map[string][]string{
		scanRoot + "/CLS/W01/LOT1": {
			scanRoot + "/CLS/W01/LOT1/F01/20240101",
			scanRoot + "/CLS/W01/LOT1/F01/20240102",
			scanRoot + "/CLS/W01/LOT1/F02/2024-03-05",
		},
		scanRoot + "/CLS/W02/LOT1": {scanRoot + "/CLS/W02/LOT1/F03/20240101"},
		scanRoot + "/CLS/W01/LOT2": {scanRoot + "/CLS/W01/LOT2/F09"},
	}
	for lotPath, want := range wantFilms {
		if got := out.Films.FilmsIndex[lotPath]; !equalStrings(got, want) {
			t.Errorf("films_index[%s] = %v, want %v", lotPath, got, want)
		}
	}
	if out.Films.Mode != FilmsModeMap {
		t.Errorf("Expected mode %q, got %q", FilmsModeMap, out.Films.Mode)
	}
	if out.NewLots != 3 || out.NewFilms != 5 {
		t.Errorf("Expected 3 new lots and 5 new films, got %d and %d", out.NewLots, out.NewFilms)
	}

	for _, p := range []string{scanRoot + "/CLS/W01/LOT1", scanRoot + "/CLS/W02/LOT1", scanRoot + "/CLS/W01/LOT2"} {
		if !out.Visited.Contains(p) {
			t.Errorf("Expected lot path %s in visited set", p)
		}
	}
	if out.Visited.Contains(scanRoot + "/CLS/W01/LOT1/F01") {
		t.Error("Film folders should not be visited")
	}
	if out.Visited.Len() != 3 {
		t.Errorf("Expected 3 visited paths, got %v", out.Visited.Sorted())
	}
}

func TestScanUpdateFindsNewFilmUnderVisitedLot(t *testing.T) {
	t.Parallel()

	tree := scanTree()
	first, err := Build(context.Background(), Job{Server: scanServer(), Source: tree, Traversal: scanTraversal(4)})
	if err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}

	tree.AddDir(
		scanRoot+"/CLS/W01/LOT1/F04/20240505",
		scanRoot+"/CLS/W01/LOT2/F09/20240606",
		scanRoot+"/CLS/W01/LOT1/F01/20240707",
	)
	tree.ResetCounts()

	out, err := Build(context.Background(), Job{
		Server:    scanServer(),
		Source:    tree,
		Mode:      traversal.ModeIncremental,
		Traversal: scanTraversal(4),
		Lots:      first.Lots,
		Films:     first.Films,
		Visited:   first.Visited,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	lot1 := out.Films.FilmsIndex[scanRoot+"/CLS/W01/LOT1"]
	if !contains(lot1, scanRoot+"/CLS/W01/LOT1/F04/20240505") {
		t.Errorf("New film under visited lot not found: %v", lot1)
	}
	if !contains(lot1, scanRoot+"/CLS/W01/LOT1/F01/20240707") {
		t.Errorf("New date under an indexed film folder not found: %v", lot1)
	}
	if tree.ListCount(scanRoot+"/CLS/W01/LOT1/F01") != 1 {
		t.Error("Indexed film folder should be listed again by update")
	}

	lot2 := out.Films.FilmsIndex[scanRoot+"/CLS/W01/LOT2"]
	if !contains(lot2, scanRoot+"/CLS/W01/LOT2/F09/20240606") {
		t.Errorf("Date under a dateless leaf not found: %v", lot2)
	}
	if !contains(lot2, scanRoot+"/CLS/W01/LOT2/F09") {
		t.Error("Update must not remove existing leaves")
	}
	if out.NewFilms != 3 || out.NewLots != 0 {
		t.Errorf("Expected 3 new films and 0 new lots, got %d and %d", out.NewFilms, out.NewLots)
	}
}

func TestScanUpdateIsIdempotent(t *testing.T) {
	t.Parallel()

	tree := scanTree()
	first, err := Build(context.Background(), Job{Server: scanServer(), Source: tree, Traversal: scanTraversal(4)})
	if err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}
	wantLots := cloneIndex(first.Lots.LotsIndex)
	wantFilms := cloneIndex(first.Films.FilmsIndex)
	wantVisited := first.Visited.Sorted()

	out, err := Build(context.Background(), Job{
		Server:    scanServer(),
		Source:    tree,
		Mode:      traversal.ModeIncremental,
		Traversal: scanTraversal(4),
		Lots:      first.Lots,
		Films:     first.Films,
		Visited:   first.Visited,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if out.NewFilms != 0 || out.NewLots != 0 {
		t.Errorf("Update of an unchanged tree added entries: new films=%d lots=%d", out.NewFilms, out.NewLots)
	}
	if !equalIndex(out.Lots.LotsIndex, wantLots) {
		t.Errorf("lots_index changed:\n got %v\nwant %v", out.Lots.LotsIndex, wantLots)
	}
	if !equalIndex(out.Films.FilmsIndex, wantFilms) {
		t.Errorf("films_index changed:\n got %v\nwant %v", out.Films.FilmsIndex, wantFilms)
	}
	if !equalStrings(out.Visited.Sorted(), wantVisited) {
		t.Errorf("visited changed: %v, want %v", out.Visited.Sorted(), wantVisited)
	}
}

// Two incremental walks sharing one builder and visited set must leave the
// union of what each found.
func TestScanConcurrentRunsShareVisitedSet(t *testing.T) {
	t.Parallel()

	cfg := scanServer()
	lots, films := NewLotsDocument(cfg.Name), NewFilmsDocument(cfg.Name)
	visited := NewVisitedSet(scanRoot + "/CLS/W01/LOT1")
	b := NewScanBuilder(cfg, lots, films, visited)

	left := sourcetest.NewTree()
	right := sourcetest.NewTree()
	for f := 0; f < 30; f++ {
		left.AddDir(fmt.Sprintf("%s/CLS/W01/LOT1/F%03d/20240101", scanRoot, f))
		left.AddDir(fmt.Sprintf("%s/CLS/W01/LOTA/F%03d/20240101", scanRoot, f))
		right.AddDir(fmt.Sprintf("%s/CLS/W01/LOT1/G%03d/20240202", scanRoot, f))
		right.AddDir(fmt.Sprintf("%s/CLS/W02/LOTB/G%03d/20240202", scanRoot, f))
	}

	tcfg := scanTraversal(16)
	tcfg.Mode = traversal.ModeIncremental
	var wg sync.WaitGroup
	for _, tree := range []*sourcetest.Tree{left, right} {
		tree := tree
		wg.Add(1)
		go func() {
			defer wg.Done()
			eng := traversal.New(cfg.Name, tree, b, nil, b.TraversalConfig(tcfg, cfg.MaxDepth))
			if _, err := eng.Run(context.Background(), scanRoot); err != nil {
				t.Errorf("walk failed: %v", err)
			}
		}()
	}
	wg.Wait()

	lots, films = b.Documents()
	wantLots := map[string][]string{
		"LOT1": {scanRoot + "/CLS/W01/LOT1"},
		"LOTA": {scanRoot + "/CLS/W01/LOTA"},
		"LOTB": {scanRoot + "/CLS/W02/LOTB"},
	}
	if !equalIndex(lots.LotsIndex, wantLots) {
		t.Errorf("Unexpected lots index: %v", lots.LotsIndex)
	}
	wantLeaves := map[string]int{
		scanRoot + "/CLS/W01/LOT1": 60,
		scanRoot + "/CLS/W01/LOTA": 30,
		scanRoot + "/CLS/W02/LOTB": 30,
	}
	for lotPath, n := range wantLeaves {
		if got := len(films.FilmsIndex[lotPath]); got != n {
			t.Errorf("films_index[%s] has %d leaves, want %d", lotPath, got, n)
		}
	}
	if b.NewFilms() != 120 || b.NewLots() != 3 {
		t.Errorf("Expected 120 new films and 3 new lots, got %d and %d", b.NewFilms(), b.NewLots())
	}
	for lotPath := range wantLeaves {
		if !visited.Contains(lotPath) {
			t.Errorf("Expected %s in visited set", lotPath)
		}
	}
	if visited.Len() != 3 {
		t.Errorf("Expected 3 visited lot paths, got %v", visited.Sorted())
	}
}

func TestScanRespectsMaxDepth(t *testing.T) {
	t.Parallel()

	cfg := scanServer()
	cfg.MaxDepth = 3

	out, err := Build(context.Background(), Job{Server: cfg, Source: scanTree(), Traversal: scanTraversal(2)})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(out.Films.FilmsIndex) != 0 {
		t.Errorf("Films beyond max depth were indexed: %v", out.Films.FilmsIndex)
	}
}

func TestScanMinLeafDepthFromMeta(t *testing.T) {
	t.Parallel()

	cfg := scanServer()
	cfg.Meta = map[string]string{"min_leaf_depth": "5"}

	out, err := Build(context.Background(), Job{Server: cfg, Source: scanTree(), Traversal: scanTraversal(2)})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if _, ok := out.Films.FilmsIndex[scanRoot+"/CLS/W01/LOT2"]; ok {
		t.Error("Dateless leaf above min_leaf_depth should be ignored")
	}
}

func TestScanRootFailure(t *testing.T) {
	t.Parallel()

	tree := scanTree()
	tree.Fail(scanRoot, fmt.Errorf("connection refused"))

	_, err := Build(context.Background(), Job{Server: scanServer(), Source: tree, Traversal: scanTraversal(2)})
	if err == nil {
		t.Fatal("Expected error when root cannot be listed")
	}
}

// Many workers merging into the same lots must produce the same documents
// as a single worker.
func TestScanConcurrentMergeMatchesSerial(t *testing.T) {
	t.Parallel()

	tree := sourcetest.NewTree()
	for w := 0; w < 6; w++ {
		for f := 0; f < 20; f++ {
			for d := 1; d <= 3; d++ {
				tree.AddDir(fmt.Sprintf("%s/CLS/W%02d/LOTX/F%03d/2024010%d", scanRoot, w, f, d))
			}
		}
	}

	serial, err := Build(context.Background(), Job{Server: scanServer(), Source: tree, Traversal: scanTraversal(1)})
	if err != nil {
		t.Fatalf("serial build failed: %v", err)
	}

	var wg sync.WaitGroup
	results := make([]Outcome, 4)
	for i := range results {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := Build(context.Background(), Job{Server: scanServer(), Source: tree, Traversal: scanTraversal(32)})
			if err != nil {
				t.Errorf("parallel build failed: %v", err)
			}
			results[i] = out
		}()
	}
	wg.Wait()

	for _, par := range results {
		if par.Films == nil {
			continue
		}
		if par.Films.LeafCount() != 360 || serial.Films.LeafCount() != 360 {
			t.Fatalf("Expected 360 leaves, got serial=%d parallel=%d", serial.Films.LeafCount(), par.Films.LeafCount())
		}
		if !equalStrings(par.Lots.LotsIndex["LOTX"], serial.Lots.LotsIndex["LOTX"]) {
			t.Errorf("lots differ: %v vs %v", par.Lots.LotsIndex["LOTX"], serial.Lots.LotsIndex["LOTX"])
		}
		for lotPath, leaves := range serial.Films.FilmsIndex {
			if !equalStrings(par.Films.FilmsIndex[lotPath], leaves) {
				t.Errorf("films_index[%s] differs", lotPath)
			}
		}
	}
}

func TestScanVisitIgnoresFilesAndShallowDates(t *testing.T) {
	t.Parallel()

	lots, films := NewLotsDocument("S"), NewFilmsDocument("S")
	b := NewScanBuilder(scanServer(), lots, films, nil)

	entries := []source.Entry{{Name: "20240101", IsDir: true}, {Name: "CLS", IsDir: true}, {Name: "20240102", IsDir: false}}
	descend, complete := b.Visit(context.Background(), traversal.Item{Path: scanRoot, Depth: 0}, entries)
	if complete {
		t.Error("Root should never be complete")
	}
	if len(descend) != 1 || descend[0] != "CLS" {
		t.Errorf("Expected to descend into CLS only, got %v", descend)
	}
	if len(films.FilmsIndex) != 0 {
		t.Errorf("Dates at the root should not be recorded: %v", films.FilmsIndex)
	}
}

func cloneIndex(m map[string][]string) map[string][]string {
	out := make(map[string][]string, len(m))
	for k, v := range m {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func equalIndex(a, b map[string][]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if !equalStrings(v, b[k]) {
			return false
		}
	}
	return true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
