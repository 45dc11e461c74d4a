package main

import (
	"errors"
	"flag"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/lawnetwork/lawnet/core/access"
	"github.com/lawnetwork/lawnet/core/submission"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db            *sqlx.DB
	accessSvc     *access.Service
	submissionSvc *submission.Service
	planRepo      access.PlanRepository
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate - apply pending database migrations")
	fmt.Println("  approve -id ID -seconds N [-message MSG] - approve a submission and grant access")
	fmt.Println("  reject -id ID - reject a pending submission")
	fmt.Println("  revoke -id ID - revoke an approved submission and its grant")
	fmt.Println("  revokekey -subject SUBJECT -feature FEATURE -feature-id ID - revoke a grant directly")
	fmt.Println("  sweep - purge expired grant rows")
	fmt.Println("  autoapprove [on|off] - show or set the auto-approval switch")
	fmt.Println("  plans [-tier TIER -seconds N] - list plan durations or set an override")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	approveCmd := flag.NewFlagSet("approve", flag.ExitOnError)
	approveID := approveCmd.String("id", "", "The submission id.")
	approveSecs := approveCmd.Int64("seconds", 0, "Grant duration in seconds.")
	approveMsg := approveCmd.String("message", "", "Optional note shown to the viewer.")

	rejectCmd := flag.NewFlagSet("reject", flag.ExitOnError)
	rejectID := rejectCmd.String("id", "", "The submission id.")

	revokeCmd := flag.NewFlagSet("revoke", flag.ExitOnError)
	revokeID := revokeCmd.String("id", "", "The submission id.")

	revokeKeyCmd := flag.NewFlagSet("revokekey", flag.ExitOnError)
	revokeKeySubject := revokeKeyCmd.String("subject", "", "The viewer's email.")
	revokeKeyFeature := revokeKeyCmd.String("feature", "", "The feature kind.")
	revokeKeyFeatureID := revokeKeyCmd.String("feature-id", "", "The item id within the feature.")

	plansCmd := flag.NewFlagSet("plans", flag.ExitOnError)
	plansTier := plansCmd.String("tier", "", "The plan tier to override.")
	plansSecs := plansCmd.Int64("seconds", 0, "The tier's grant duration in seconds.")

	switch args[1] {
	case "migrate":
		return cli.migrate()
	case "approve":
		if err := approveCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *approveID == "" || *approveSecs <= 0 {
			approveCmd.Usage()
			return errHelp
		}
		return cli.approve(*approveID, *approveSecs, *approveMsg)
	case "reject":
		if err := rejectCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *rejectID == "" {
			rejectCmd.Usage()
			return errHelp
		}
		return cli.reject(*rejectID)
	case "revoke":
		if err := revokeCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *revokeID == "" {
			revokeCmd.Usage()
			return errHelp
		}
		return cli.revoke(*revokeID)
	case "revokekey":
		if err := revokeKeyCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *revokeKeySubject == "" || *revokeKeyFeature == "" || *revokeKeyFeatureID == "" {
			revokeKeyCmd.Usage()
			return errHelp
		}
		return cli.revokeKey(*revokeKeySubject, *revokeKeyFeature, *revokeKeyFeatureID)
	case "sweep":
		return cli.sweep()
	case "autoapprove":
		return cli.autoApprove(args[2:])
	case "plans":
		if err := plansCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *plansTier == "" {
			return cli.listPlans()
		}
		if *plansSecs <= 0 {
			plansCmd.Usage()
			return errHelp
		}
		return cli.setPlan(*plansTier, *plansSecs)
	default:
		cli.printUsage()
		return errHelp
	}
}
