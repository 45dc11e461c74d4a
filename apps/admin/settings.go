package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/lawnetwork/lawnet/core/access"
)

func (cli *commandLine) autoApprove(args []string) error {
	ctx := context.Background()

	if len(args) == 0 {
		enabled, err := cli.submissionSvc.AutoApprove(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("auto-approve: %v\n", enabled)
		return nil
	}

	switch args[0] {
	case "on":
		return cli.submissionSvc.SetAutoApprove(ctx, true)
	case "off":
		return cli.submissionSvc.SetAutoApprove(ctx, false)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) listPlans() error {
	overrides, err := cli.planRepo.QueryPlanTiers(context.Background())
	if err != nil {
		return err
	}

	durations := make(map[string]time.Duration, len(access.DefaultPlanDurations))
	for tier, d := range access.DefaultPlanDurations {
		durations[tier] = d
	}
	for _, pt := range overrides {
		durations[pt.Tier] = pt.Duration
	}

	tiers := make([]string, 0, len(durations))
	for tier := range durations {
		tiers = append(tiers, tier)
	}
	sort.Slice(tiers, func(i, j int) bool { return durations[tiers[i]] < durations[tiers[j]] })

	for _, tier := range tiers {
		fmt.Printf("%-10s %s\n", tier, durations[tier])
	}
	return nil
}

func (cli *commandLine) setPlan(tier string, seconds int64) error {
	pt := access.PlanTier{Tier: tier, Duration: time.Duration(seconds) * time.Second}
	if _, err := cli.planRepo.UpsertPlanTier(context.Background(), pt); err != nil {
		return err
	}
	fmt.Printf("plan %s set to %s\n", tier, pt.Duration)
	return nil
}
