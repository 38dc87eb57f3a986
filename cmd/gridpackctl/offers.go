package main

import (
	"fmt"
	"os"

	"github.com/gridpack/gridpack/core/offers"
)

func runOffersCmd(args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}
	switch args[0] {
	case "list":
		fs := newFlagSet("offers list")
		kind := fs.String("kind", "", "filter by offer kind")
		fs.ParseArgs(args[1:])
		reg := loadOffers(*fs.root)
		for _, offer := range listOffers(reg, *kind) {
			fmt.Printf("%s\t%s\tpriority=%d", offer.Key(), offer.Kind, offer.Priority)
			if offer.Kind == offers.KindHook || offer.Kind == offers.KindSubs {
				fmt.Printf("\t%s/%s", offer.Stage, offer.Contract)
			}
			if offer.Domain != "" {
				fmt.Printf("\tdomain=%s", offer.Domain)
			}
			fmt.Println()
		}
	case "stats":
		fs := newFlagSet("offers stats")
		fs.ParseArgs(args[1:])
		printJSON(loadOffers(*fs.root).Stats())
	default:
		usage()
		os.Exit(1)
	}
}

func loadOffers(root string) *offers.Registry {
	refs, err := offers.DiscoverPacks(root)
	check(err)
	reg, err := offers.LoadRegistry(root, refs, 1)
	check(err)
	return reg
}

func listOffers(reg *offers.Registry, kind string) []offers.Offer {
	if kind != "" {
		return reg.Select(kind)
	}
	var out []offers.Offer
	for _, k := range []string{offers.KindHook, offers.KindSubs, offers.KindCapability} {
		out = append(out, reg.Select(k)...)
	}
	return out
}
