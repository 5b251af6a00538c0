package cli

import (
	"fmt"

	"github.com/alem-hub/streakhub/internal/application/command"
	"github.com/alem-hub/streakhub/internal/application/query"
	"github.com/alem-hub/streakhub/internal/domain/saver"
)

type SaverCmd struct {
	Status SaverStatusCmd `cmd:"" help:"Show saver inventory, or whether a habit's streak can be saved." default:"1"`
	Use    SaverUseCmd    `cmd:"" help:"Use one saver to repair a habit's latest break."`
	Grant  SaverGrantCmd  `cmd:"" help:"Add savers to an inventory."`
}

// inventoryOwner resolves whose inventory a command works on: the team
// inventory of a group or the personal one of the owner.
func inventoryOwner(ctx *Context, groupID string) (string, saver.Scope, error) {
	if groupID != "" {
		return groupID, saver.ScopeTeam, nil
	}
	if err := ctx.requireOwner(); err != nil {
		return "", "", err
	}
	return ctx.Owner, saver.ScopePersonal, nil
}

type SaverStatusCmd struct {
	HabitID string `arg:"" name:"habit" optional:"" help:"Habit or group habit ID."`
	Group   string `short:"G" help:"Use the team inventory of this group."`
}

func (c *SaverStatusCmd) Run(ctx *Context) error {
	owner, scope, err := inventoryOwner(ctx, c.Group)
	if err != nil {
		return err
	}

	if c.HabitID == "" {
		inv, err := ctx.Store.Savers().Inventory(ctx.Ctx, owner, scope)
		if err != nil {
			return err
		}
		fmt.Fprintf(ctx.Out, "%s savers: %d\n", scope, inv.Available)
		return nil
	}

	e, err := ctx.Eligibility.Handle(ctx.Ctx, query.GetSaveEligibilityQuery{HabitID: c.HabitID, OwnerID: owner, Scope: scope})
	if err != nil {
		return err
	}
	printEligibility(ctx, e)
	return nil
}

func printEligibility(ctx *Context, e query.EligibilityDTO) {
	if e.CanSave {
		fmt.Fprintf(ctx.Out, "Break on %s can be saved", e.LastBreakDate)
		if e.ExpiresAt != nil {
			fmt.Fprintf(ctx.Out, " until %s", e.ExpiresAt.In(ctx.Engine.Config().Location).Format("2006-01-02 15:04"))
		}
		fmt.Fprintf(ctx.Out, " (%d saver(s) left)\n", e.Available)
		return
	}

	msg := e.Message
	if msg == "" {
		msg = e.Reason
	}
	fmt.Fprintf(ctx.Out, "Cannot save: %s (%d saver(s) left)\n", msg, e.Available)
	if e.CanAcquireMore {
		fmt.Fprintln(ctx.Out, "Get more with: habitctl saver grant <amount>")
	}
}

type SaverUseCmd struct {
	HabitID string `arg:"" name:"habit" help:"Habit or group habit ID."`
}

func (c *SaverUseCmd) Run(ctx *Context) error {
	res, err := ctx.Savers.Apply(ctx.Ctx, command.ApplySaverCommand{HabitID: c.HabitID})
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "Saved the break on %s. Streak is %d again, %d saver(s) left\n",
		res.BreakDate, res.Restored, res.Remaining)
	return nil
}

type SaverGrantCmd struct {
	Amount int    `arg:"" help:"Number of savers to add."`
	Group  string `short:"G" help:"Grant to the team inventory of this group."`
}

func (c *SaverGrantCmd) Validate() error {
	if c.Amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	return nil
}

func (c *SaverGrantCmd) Run(ctx *Context) error {
	owner, scope, err := inventoryOwner(ctx, c.Group)
	if err != nil {
		return err
	}
	inv, err := ctx.Savers.Grant(ctx.Ctx, command.GrantSaversCommand{OwnerID: owner, Scope: scope, Amount: c.Amount})
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "%s savers: %d\n", inv.Scope, inv.Available)
	return nil
}
