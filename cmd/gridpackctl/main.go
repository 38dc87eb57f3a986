package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/gridpack/gridpack/core/project"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "init":
		runInitCmd(args)
	case "scan":
		runScanCmd(args)
	case "resolve":
		runResolveCmd(args)
	case "tenant":
		runTenantCmd(args)
	case "team":
		runTeamCmd(args)
	case "policy":
		runPolicyCmd(args)
	case "offers":
		runOffersCmd(args)
	default:
		usage()
		os.Exit(1)
	}
}

func runInitCmd(args []string) {
	fs := newFlagSet("init")
	fs.ParseArgs(args)
	check(project.InitProject(*fs.root))
	fmt.Println("initialized", *fs.root)
}

func runScanCmd(args []string) {
	fs := newFlagSet("scan")
	format := fs.String("format", "text", "report format: text or json")
	fs.ParseArgs(args)
	scan, err := project.ScanProject(*fs.root)
	check(err)
	check(project.RenderReport(os.Stdout, scan, *format))
}

func runResolveCmd(args []string) {
	fs := newFlagSet("resolve")
	all := fs.Bool("all", false, "resolve every tenant and team")
	tenant := fs.String("tenant", "", "tenant name")
	team := fs.String("team", "", "team name")
	fs.ParseArgs(args)

	resolver := project.NewResolver(*fs.root, nil, nil, nil)
	if *all {
		manifests, err := resolver.ResolveAll(context.Background())
		check(err)
		for _, m := range manifests {
			fmt.Println(m.Key())
		}
		return
	}
	if *tenant == "" {
		fail("--tenant or --all required")
	}
	m, err := resolver.Resolve(context.Background(), *tenant, *team)
	check(err)
	fmt.Println(project.ManifestPath(*fs.root, m.Tenant, m.Team))
}

func runTenantCmd(args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}
	switch args[0] {
	case "add":
		fs := newFlagSet("tenant add")
		fs.ParseArgs(args[1:])
		if fs.NArg() < 1 {
			fail("tenant name required")
		}
		check(project.AddTenant(*fs.root, fs.Arg(0)))
	case "remove":
		fs := newFlagSet("tenant remove")
		fs.ParseArgs(args[1:])
		if fs.NArg() < 1 {
			fail("tenant name required")
		}
		check(project.RemoveTenant(*fs.root, fs.Arg(0)))
	case "list":
		fs := newFlagSet("tenant list")
		fs.ParseArgs(args[1:])
		scan, err := project.ScanProject(*fs.root)
		check(err)
		for _, tenant := range scan.Tenants {
			if len(tenant.Teams) == 0 {
				fmt.Println(tenant.Name)
				continue
			}
			fmt.Printf("%s\t%s\n", tenant.Name, strings.Join(tenant.Teams, ","))
		}
	default:
		usage()
		os.Exit(1)
	}
}

func runTeamCmd(args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}
	switch args[0] {
	case "add":
		fs := newFlagSet("team add")
		fs.ParseArgs(args[1:])
		if fs.NArg() < 2 {
			fail("tenant and team names required")
		}
		check(project.AddTeam(*fs.root, fs.Arg(0), fs.Arg(1)))
	case "remove":
		fs := newFlagSet("team remove")
		fs.ParseArgs(args[1:])
		if fs.NArg() < 2 {
			fail("tenant and team names required")
		}
		check(project.RemoveTeam(*fs.root, fs.Arg(0), fs.Arg(1)))
	default:
		usage()
		os.Exit(1)
	}
}

type flagSet struct {
	*flag.FlagSet
	root *string
}

func newFlagSet(name string) *flagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	root := fs.String("root", envOr("GRIDPACK_PROJECT_ROOT", "."), "project root")
	return &flagSet{FlagSet: fs, root: root}
}

func (fs *flagSet) ParseArgs(args []string) {
	if err := fs.Parse(args); err != nil {
		fail(err.Error())
	}
}

func printJSON(value any) {
	data, err := json.MarshalIndent(value, "", "  ")
	check(err)
	fmt.Println(string(data))
}

func usage() {
	fmt.Print(`gridpackctl - gridpack project CLI

Usage:
  gridpackctl init
  gridpackctl scan [--format text|json]
  gridpackctl resolve (--tenant <t> [--team <m>] | --all)
  gridpackctl tenant add <name>
  gridpackctl tenant remove <name>
  gridpackctl tenant list
  gridpackctl team add <tenant> <team>
  gridpackctl team remove <tenant> <team>
  gridpackctl policy allow <tenant> [<team>] <path>
  gridpackctl policy forbid <tenant> [<team>] <path>
  gridpackctl policy eval <tenant> [<team>] <path>
  gridpackctl offers list [--kind hook|subs|capability]
  gridpackctl offers stats

Global flags:
  --root   Project root (default from GRIDPACK_PROJECT_ROOT, else .)
`)
}

func envOr(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func check(err error) {
	if err != nil {
		fail(err.Error())
	}
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
