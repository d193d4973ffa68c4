package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spec-kit/ticket-sla/internal/bootstrap"
	"github.com/spec-kit/ticket-sla/internal/domain"
	"github.com/spec-kit/ticket-sla/internal/service"
)

var staffInput struct {
	name     string
	email    string
	password string
	role     string
	teamID   string
}

var staffCmd = &cobra.Command{
	Use:   "staff",
	Short: "Manage staff accounts",
}

var staffCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an active staff account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		input := service.CreateStaffInput{
			Name:     staffInput.name,
			Email:    staffInput.email,
			Password: staffInput.password,
			Role:     domain.StaffRole(strings.ToUpper(staffInput.role)),
		}
		if staffInput.teamID != "" {
			input.TeamID = &staffInput.teamID
		}
		return withContainer(cmd.Context(), func(c *bootstrap.Container) error {
			staff, err := c.Auth.CreateStaff(cmd.Context(), input)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "staff %s %s (%s)\n", staff.ID, staff.Email, staff.Role)
			return nil
		})
	},
}

func init() {
	f := staffCreateCmd.Flags()
	f.StringVar(&staffInput.name, "name", "", "display name")
	f.StringVar(&staffInput.email, "email", "", "login email")
	f.StringVar(&staffInput.password, "password", "", "initial password")
	f.StringVar(&staffInput.role, "role", string(domain.StaffRoleAgent), "AGENT, MANAGER or ADMIN")
	f.StringVar(&staffInput.teamID, "team", "", "team id")
	_ = staffCreateCmd.MarkFlagRequired("email")
	_ = staffCreateCmd.MarkFlagRequired("password")

	staffCmd.AddCommand(staffCreateCmd)
	rootCmd.AddCommand(staffCmd)
}
