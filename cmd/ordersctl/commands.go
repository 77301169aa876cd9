package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imrishuroy/go-promptpay-orderflow/internal/accounts"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/app"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/inventory"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/orders"
)

type builder func(ctx context.Context) (*app.App, error)

func newRootCmd(build builder) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "ordersctl",
		Short:         "Operate on PromptPay orders, products and accounts",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(sweepCmd(build))
	rootCmd.AddCommand(getCmd(build))
	rootCmd.AddCommand(listCmd(build))
	rootCmd.AddCommand(confirmCmd(build))
	rootCmd.AddCommand(productCmd(build))
	rootCmd.AddCommand(accountCmd(build))

	return rootCmd
}

func sweepCmd(build builder) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Expire every stale pending order of an owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, _ := cmd.Flags().GetString("owner")
			a, err := build(cmd.Context())
			if err != nil {
				return err
			}
			n, err := a.Engine.SweepOwner(cmd.Context(), owner)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d order(s) for %s\n", n, owner)
			return nil
		},
	}

	cmd.Flags().StringP("owner", "o", "", "Buyer whose pending orders are swept")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}

func getCmd(build builder) *cobra.Command {
	return &cobra.Command{
		Use:   "get [owner] [order]",
		Short: "Show one order, applying expiry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build(cmd.Context())
			if err != nil {
				return err
			}
			o, err := a.Engine.GetOrder(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd, o)
		},
	}
}

func listCmd(build builder) *cobra.Command {
	return &cobra.Command{
		Use:   "list [owner]",
		Short: "List an owner's orders, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build(cmd.Context())
			if err != nil {
				return err
			}
			list, err := a.Engine.ListOrders(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, o := range list {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", o.OrderID, o.Status, o.TotalPrice, o.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
			}
			return nil
		},
	}
}

func confirmCmd(build builder) *cobra.Command {
	return &cobra.Command{
		Use:   "confirm [owner] [order]",
		Short: "Settle an order from its payment intent when the webhook was missed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build(cmd.Context())
			if err != nil {
				return err
			}
			o, err := a.Engine.ConfirmManually(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd, o)
		},
	}
}

func productCmd(build builder) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "product",
		Short: "Manage catalog products",
	}

	add := &cobra.Command{
		Use:   "add",
		Short: "Add a product with its starting stock",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			owner, _ := f.GetString("owner")
			category, _ := f.GetString("category")
			id, _ := f.GetString("id")
			name, _ := f.GetString("name")
			price, _ := f.GetString("price")
			qty, _ := f.GetInt("quantity")
			image, _ := f.GetString("image")

			money, err := orders.ParseMoney(price)
			if err != nil {
				return err
			}
			a, err := build(cmd.Context())
			if err != nil {
				return err
			}
			p := inventory.Product{
				OwnerID: owner, Category: category, ProductID: id,
				Name: name, Price: money, Quantity: qty, Image: image,
			}
			if err := a.Inventory.Create(cmd.Context(), p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", p.Ref())
			return nil
		},
	}
	add.Flags().String("owner", "", "Seller id")
	add.Flags().String("category", "", "Product category")
	add.Flags().String("id", "", "Product id")
	add.Flags().String("name", "", "Display name")
	add.Flags().String("price", "", "Unit price in THB, e.g. 49.50")
	add.Flags().Int("quantity", 0, "Units in stock")
	add.Flags().String("image", "", "Image url")
	for _, name := range []string{"owner", "category", "id", "name", "price"} {
		_ = add.MarkFlagRequired(name)
	}

	show := &cobra.Command{
		Use:   "get [owner] [category] [id]",
		Short: "Show a product and its stock",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build(cmd.Context())
			if err != nil {
				return err
			}
			ref := inventory.Ref{OwnerID: args[0], Category: args[1], ProductID: args[2]}
			p, err := a.Inventory.Get(cmd.Context(), ref)
			if err != nil {
				return err
			}
			if p == nil {
				return fmt.Errorf("product %s not found", ref)
			}
			return printJSON(cmd, p)
		},
	}

	cmd.AddCommand(add, show)
	return cmd
}

func accountCmd(build builder) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage buyer accounts",
	}

	put := &cobra.Command{
		Use:   "put",
		Short: "Create or replace a buyer profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, _ := cmd.Flags().GetString("user")
			email, _ := cmd.Flags().GetString("email")
			name, _ := cmd.Flags().GetString("name")
			a, err := build(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.Accounts.Put(cmd.Context(), accounts.Account{UserID: user, Email: email, DisplayName: name}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", user)
			return nil
		},
	}
	put.Flags().String("user", "", "User id")
	put.Flags().String("email", "", "Email used for PromptPay billing details")
	put.Flags().String("name", "", "Display name")
	_ = put.MarkFlagRequired("user")

	cmd.AddCommand(put)
	return cmd
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
