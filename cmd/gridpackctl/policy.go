package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gridpack/gridpack/core/gmap"
)

func runPolicyCmd(args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}
	switch args[0] {
	case "allow":
		runPolicyEdit(args[1:], "policy allow", gmap.PolicyPublic)
	case "forbid":
		runPolicyEdit(args[1:], "policy forbid", gmap.PolicyForbidden)
	case "eval":
		runPolicyEval(args[1:])
	default:
		usage()
		os.Exit(1)
	}
}

// policyArgs splits "tenant [team] path" positionals.
func policyArgs(fs *flagSet) (tenant, team, rawPath string) {
	switch fs.NArg() {
	case 2:
		return fs.Arg(0), "", fs.Arg(1)
	case 3:
		return fs.Arg(0), fs.Arg(1), fs.Arg(2)
	default:
		fail("expected <tenant> [<team>] <path>")
		return "", "", ""
	}
}

func gmapFile(root, tenant, team string) string {
	if team == "" {
		return filepath.Join(root, "tenants", tenant, "tenant.gmap")
	}
	return filepath.Join(root, "tenants", tenant, "teams", team, "team.gmap")
}

func runPolicyEdit(args []string, name string, policy gmap.Policy) {
	fs := newFlagSet(name)
	fs.ParseArgs(args)
	tenant, team, rawPath := policyArgs(fs)
	path, err := gmap.ParsePath(rawPath)
	check(err)
	file := gmapFile(*fs.root, tenant, team)
	if _, err := os.Stat(filepath.Dir(file)); err != nil {
		fail(fmt.Sprintf("no such tenant or team: %s", filepath.Dir(file)))
	}
	check(gmap.UpsertFile(file, path, policy))
	fmt.Printf("%s = %s\n", path.String(), policy)
}

func runPolicyEval(args []string) {
	fs := newFlagSet("policy eval")
	fs.ParseArgs(args)
	tenant, team, rawPath := policyArgs(fs)
	path, err := gmap.ParsePath(rawPath)
	check(err)

	tenantDoc, err := gmap.LoadFile(gmapFile(*fs.root, tenant, ""))
	check(err)
	var teamDoc *gmap.Document
	if team != "" {
		teamDoc, err = gmap.LoadFile(gmapFile(*fs.root, tenant, team))
		check(err)
	}

	policy, matched := gmap.Evaluate(tenantDoc, teamDoc, path)
	if !matched {
		fmt.Printf("%s = %s (default)\n", path.String(), gmap.PolicyForbidden)
		return
	}
	fmt.Printf("%s = %s\n", path.String(), policy)
}
