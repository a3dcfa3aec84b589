package main

import (
	"fmt"
	"strings"

	"github.com/01000101/cloudbridge/pkg/cloud"
	"github.com/01000101/cloudbridge/pkg/models"

	"github.com/spf13/cobra"
)

var (
	groupDescription string
	groupVpcID       string
	ruleProtocol     string
	ruleFromPort     int64
	ruleToPort       int64
	ruleCIDR         string
	ruleSourceGroup  string
)

func newSecurityGroupCmd() *cobra.Command {
	var cmd = &cobra.Command{
		Use:     "secgroup",
		Aliases: []string{"securitygroup", "sg"},
		Short:   "Manage security groups and their ingress rules",
	}

	var createCmd = &cobra.Command{
		Use:   "create NAME",
		Short: "Create a security group",
		Args:  cobra.ExactArgs(1),
		RunE:  runSecurityGroupCreate,
	}
	createCmd.Flags().StringVarP(&groupDescription, "description", "d", "", "Group description (defaults to the name)")
	createCmd.Flags().StringVar(&groupVpcID, "vpc-id", "", "VPC to create the group in (defaults to the default VPC)")

	var listCmd = &cobra.Command{
		Use:   "list",
		Short: "List security groups",
		Args:  cobra.NoArgs,
		RunE:  runSecurityGroupList,
	}
	addPagingFlags(listCmd)

	var addRuleCmd = &cobra.Command{
		Use:   "add-rule NAME",
		Short: "Add an ingress rule to a security group",
		Long:  "Add an ingress rule allowing traffic from either a CIDR block or another security group",
		Args:  cobra.ExactArgs(1),
		RunE:  runSecurityGroupAddRule,
	}
	addRuleCmd.Flags().StringVarP(&ruleProtocol, "protocol", "p", "tcp", "Protocol (tcp, udp, icmp, -1 for all)")
	addRuleCmd.Flags().Int64Var(&ruleFromPort, "from-port", 0, "First port of the range")
	addRuleCmd.Flags().Int64Var(&ruleToPort, "to-port", 0, "Last port of the range (defaults to --from-port)")
	addRuleCmd.Flags().StringVar(&ruleCIDR, "cidr", "", "Source CIDR block")
	addRuleCmd.Flags().StringVar(&ruleSourceGroup, "source-group", "", "Source security group name or id")
	addRuleCmd.MarkFlagsMutuallyExclusive("cidr", "source-group")
	addRuleCmd.MarkFlagsOneRequired("cidr", "source-group")

	cmd.AddCommand(createCmd, listCmd, addRuleCmd,
		&cobra.Command{
			Use:   "find NAME",
			Short: "Find a security group by name",
			Args:  cobra.ExactArgs(1),
			RunE:  runSecurityGroupFind,
		},
		&cobra.Command{
			Use:   "delete NAME",
			Short: "Delete a security group",
			Args:  cobra.ExactArgs(1),
			RunE:  runSecurityGroupDelete,
		},
		&cobra.Command{
			Use:   "rules NAME",
			Short: "List the ingress rules of a security group",
			Args:  cobra.ExactArgs(1),
			RunE:  runSecurityGroupRules,
		},
	)
	return cmd
}

func formatSecurityGroup(sg cloud.SecurityGroup) string {
	return fmt.Sprintf("%-22s %-30s %-22s %s", sg.ID(), sg.Name(), sg.VpcID(), sg.Description())
}

func formatRule(r cloud.SecurityGroupRule) string {
	source := r.CIDR()
	if sg := r.SourceGroup(); sg != nil {
		source = fmt.Sprintf("%s (%s)", sg.Name(), sg.ID())
	}
	return fmt.Sprintf("%-5s %6d-%-6d %s", r.Protocol(), r.FromPort(), r.ToPort(), source)
}

// findGroup resolves a group by id (sg-...) or name
func findGroup(cmd *cobra.Command, a *app, ref string) (cloud.SecurityGroup, error) {
	svc := a.provider.Security().SecurityGroups()
	filter := models.Filter{Names: []string{ref}}
	if strings.HasPrefix(ref, "sg-") {
		filter = models.Filter{IDs: []string{ref}}
	}
	groups, err := svc.Get(cmd.Context(), filter)
	if err != nil {
		return nil, fmt.Errorf("failed to look up security group: %w", err)
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("security group %s: %w", ref, cloud.ErrNotFound)
	}
	return groups[0], nil
}

func runSecurityGroupCreate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	sg, err := a.provider.Security().SecurityGroups().Create(cmd.Context(), args[0], groupDescription, groupVpcID)
	if err != nil {
		return fmt.Errorf("failed to create security group: %w", err)
	}
	a.record(sg)

	fmt.Printf("Security group %s created (%s)\n", sg.Name(), sg.ID())
	return nil
}

func runSecurityGroupList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	return printPage[cloud.SecurityGroup](cmd.Context(), a.provider.Security().SecurityGroups(), "security groups", formatSecurityGroup)
}

func runSecurityGroupFind(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	sg, ok, err := a.provider.Security().SecurityGroups().Find(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to find security group: %w", err)
	}
	if !ok {
		return fmt.Errorf("security group %s: %w", args[0], cloud.ErrNotFound)
	}
	fmt.Println(formatSecurityGroup(sg))
	return nil
}

func runSecurityGroupDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	sg, err := findGroup(cmd, a, args[0])
	if err != nil {
		return err
	}
	if err := sg.Delete(cmd.Context()); err != nil {
		return fmt.Errorf("failed to delete security group: %w", err)
	}
	a.forget(sg)

	fmt.Printf("Security group %s deleted.\n", sg.Name())
	return nil
}

func runSecurityGroupRules(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	sg, err := findGroup(cmd, a, args[0])
	if err != nil {
		return err
	}
	rules, err := sg.Rules(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list rules: %w", err)
	}
	if len(rules) == 0 {
		fmt.Printf("Security group %s has no ingress rules.\n", sg.Name())
		return nil
	}
	for _, r := range rules {
		fmt.Println(formatRule(r))
	}
	return nil
}

func runSecurityGroupAddRule(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	sg, err := findGroup(cmd, a, args[0])
	if err != nil {
		return err
	}

	spec := models.RuleSpec{
		Protocol: ruleProtocol,
		FromPort: ruleFromPort,
		ToPort:   ruleToPort,
		CIDR:     ruleCIDR,
	}
	if !cmd.Flags().Changed("to-port") {
		spec.ToPort = spec.FromPort
	}
	if ruleSourceGroup != "" {
		source, err := findGroup(cmd, a, ruleSourceGroup)
		if err != nil {
			return err
		}
		spec.SourceGroupID = source.ID()
		if !cmd.Flags().Changed("protocol") {
			spec.Protocol = ""
		}
	}

	if err := sg.AddRule(cmd.Context(), spec); err != nil {
		return fmt.Errorf("failed to add rule: %w", err)
	}
	fmt.Printf("Added rule %s to %s\n", spec, sg.Name())
	return nil
}
