package main

import (
	"context"
	"fmt"
	"time"

	"github.com/lawnetwork/lawnet/core/access"
)

func (cli *commandLine) approve(id string, seconds int64, message string) error {
	ctx := context.Background()
	grant, err := cli.submissionSvc.Approve(ctx, id, time.Duration(seconds)*time.Second, message)
	if err != nil {
		return err
	}
	fmt.Printf("approved: %s expires %s\n", grant.Key(), grant.Expiry.Format(time.RFC3339))
	return nil
}

func (cli *commandLine) reject(id string) error {
	sub, err := cli.submissionSvc.Reject(context.Background(), id)
	if err != nil {
		return err
	}
	fmt.Printf("rejected: %s\n", sub.Key())
	return nil
}

func (cli *commandLine) revoke(id string) error {
	if err := cli.submissionSvc.Revoke(context.Background(), id); err != nil {
		return err
	}
	fmt.Println("revoked")
	return nil
}

func (cli *commandLine) revokeKey(subject, feature, featureID string) error {
	key := access.Key{Subject: subject, Feature: feature, FeatureID: featureID}
	if err := cli.submissionSvc.RevokeKey(context.Background(), key); err != nil {
		return err
	}
	fmt.Printf("revoked: %s\n", key)
	return nil
}

func (cli *commandLine) sweep() error {
	n, err := cli.accessSvc.SweepExpired(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("swept %d expired grant(s)\n", n)
	return nil
}
