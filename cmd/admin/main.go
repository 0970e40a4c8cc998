package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"worleybiomes.ai/internal/field/tuning"
	"worleybiomes.ai/internal/persistence/preset"
	"worleybiomes.ai/internal/persistence/presetdb"
	"worleybiomes.ai/internal/persistence/presetkv"
)

func main() {
	if len(os.Args) >= 2 {
		args := os.Args[2:]
		switch os.Args[1] {
		case "list":
			listCmd(args)
			return
		case "show":
			showCmd(args)
			return
		case "save":
			saveCmd(args)
			return
		case "export":
			exportCmd(args)
			return
		case "import":
			importCmd(args)
			return
		case "delete":
			deleteCmd(args)
			return
		case "queries":
			queriesCmd(args)
			return
		case "config":
			configCmd(args)
			return
		}
	}
	listCmd(os.Args[1:])
}

type storeFlags struct {
	backend *string
	dataDir *string
}

func addStoreFlags(fs *flag.FlagSet) storeFlags {
	return storeFlags{
		backend: fs.String("backend", "sqlite", "preset backend: sqlite|leveldb"),
		dataDir: fs.String("data", "./data", "runtime data directory"),
	}
}

// open uses the same on-disk layout as the server.
func (f storeFlags) open() preset.Store {
	st, err := openStore(*f.backend, *f.dataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open store:", err)
		os.Exit(1)
	}
	return st
}

func openStore(backend, dataDir string) (preset.Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "sqlite":
		s, err := presetdb.Open(filepath.Join(dataDir, "presets", "presets.sqlite"))
		if err != nil {
			return nil, err
		}
		return s, nil
	case "leveldb":
		s, err := presetkv.Open(filepath.Join(dataDir, "presets", "leveldb"))
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

func requireName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		fmt.Fprintln(os.Stderr, "missing -name")
		os.Exit(2)
	}
	return name
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	sf := addStoreFlags(fs)
	_ = fs.Parse(args)

	st := sf.open()
	defer st.Close()

	infos, err := st.List(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "list:", err)
		os.Exit(1)
	}
	if len(infos) == 0 {
		fmt.Println("no presets")
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDIGEST\tSIZE\tCREATED")
	for _, in := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", in.Name, shortDigest(in.Digest), humanize.Bytes(uint64(in.Size)), humanize.Time(in.CreatedAt))
	}
	_ = tw.Flush()
}

func showCmd(args []string) {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	sf := addStoreFlags(fs)
	name := fs.String("name", "", "preset name")
	_ = fs.Parse(args)
	n := requireName(*name)

	st := sf.open()
	defer st.Close()

	p, err := st.Load(context.Background(), n)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load:", err)
		os.Exit(1)
	}
	b, err := p.Config.EncodeJSON()
	if err != nil {
		fmt.Fprintln(os.Stderr, "encode:", err)
		os.Exit(1)
	}
	fmt.Printf("name=%s id=%s created=%s digest=%s\n", p.Header.Name, p.Header.ID, humanize.Time(p.Header.CreatedAt), p.Header.Digest)
	fmt.Println(string(b))
}

func saveCmd(args []string) {
	fs := flag.NewFlagSet("save", flag.ExitOnError)
	sf := addStoreFlags(fs)
	name := fs.String("name", "", "preset name")
	configPath := fs.String("config", "", "sampler.yaml to store (required)")
	_ = fs.Parse(args)
	n := requireName(*name)
	if strings.TrimSpace(*configPath) == "" {
		fmt.Fprintln(os.Stderr, "missing -config")
		os.Exit(2)
	}

	rec, err := tuning.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	p, err := preset.New(n, rec)
	if err != nil {
		fmt.Fprintln(os.Stderr, "preset:", err)
		os.Exit(2)
	}

	st := sf.open()
	defer st.Close()
	if err := st.Save(context.Background(), p); err != nil {
		fmt.Fprintln(os.Stderr, "save:", err)
		os.Exit(1)
	}
	fmt.Printf("saved %s id=%s digest=%s\n", p.Header.Name, p.Header.ID, shortDigest(p.Header.Digest))
}

func exportCmd(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	sf := addStoreFlags(fs)
	name := fs.String("name", "", "preset name")
	outPath := fs.String("out", "", "output path (default: <name>.preset.zst)")
	_ = fs.Parse(args)
	n := requireName(*name)

	st := sf.open()
	defer st.Close()

	p, err := st.Load(context.Background(), n)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load:", err)
		os.Exit(1)
	}
	out := strings.TrimSpace(*outPath)
	if out == "" {
		out = n + ".preset.zst"
	}
	if err := preset.Write(out, p); err != nil {
		fmt.Fprintln(os.Stderr, "write:", err)
		os.Exit(1)
	}
	size := int64(0)
	if fi, err := os.Stat(out); err == nil {
		size = fi.Size()
	}
	fmt.Printf("exported %s -> %s (%s)\n", n, out, humanize.Bytes(uint64(size)))
}

func importCmd(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	sf := addStoreFlags(fs)
	inPath := fs.String("in", "", "preset file (required)")
	_ = fs.Parse(args)
	if strings.TrimSpace(*inPath) == "" {
		fmt.Fprintln(os.Stderr, "missing -in")
		os.Exit(2)
	}

	p, err := preset.Read(*inPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}

	st := sf.open()
	defer st.Close()
	if err := st.Save(context.Background(), p); err != nil {
		fmt.Fprintln(os.Stderr, "save:", err)
		os.Exit(1)
	}
	fmt.Printf("imported %s id=%s digest=%s\n", p.Header.Name, p.Header.ID, shortDigest(p.Header.Digest))
}

func deleteCmd(args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	sf := addStoreFlags(fs)
	name := fs.String("name", "", "preset name")
	_ = fs.Parse(args)
	n := requireName(*name)

	st := sf.open()
	defer st.Close()
	if err := st.Delete(context.Background(), n); err != nil {
		fmt.Fprintln(os.Stderr, "delete:", err)
		os.Exit(1)
	}
	fmt.Printf("deleted %s\n", n)
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
