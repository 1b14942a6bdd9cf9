package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/dukerupert/tasksparkle/internal/model"
	"github.com/dukerupert/tasksparkle/internal/taskstatus"
	"github.com/dukerupert/tasksparkle/internal/tracker"
)

// Root builds the command tree.
func (a *App) Root() *Command {
	return &Command{
		Name:    "tasksparkle",
		Summary: "Track children's daily tasks, points and rewards.",
		Subcommands: []*Command{
			a.loginCommand(),
			a.registerCommand(),
			a.logoutCommand(),
			a.whoamiCommand(),
			a.dashboardCommand(),
			a.childCommand(),
			a.taskCommand(),
			a.rewardCommand(),
			a.doneCommand(),
			a.missCommand(),
			a.penalizeCommand(),
			a.clearDayCommand(),
			a.redeemCommand(),
			a.historyCommand(),
			a.backupCommand(),
		},
	}
}

func flagSet(name string) *pflag.FlagSet {
	return pflag.NewFlagSet(name, pflag.ContinueOnError)
}

func (a *App) loginCommand() *Command {
	var email, password, passwordFile string
	return &Command{
		Name:    "login",
		Summary: "Log in and remember the session",
		Usage:   "tasksparkle login [--email EMAIL] [--password-file PATH]",
		Flags: func() *pflag.FlagSet {
			fs := flagSet("login")
			fs.StringVar(&email, "email", "", "account email (prompted if empty)")
			fs.StringVar(&password, "password", "", "account password (visible in the process list; prefer --password-file)")
			fs.StringVar(&passwordFile, "password-file", "", "file containing the password, or - to prompt (default: prompt)")
			return fs
		},
		Run: func(ctx context.Context, args []string) error {
			if email == "" {
				email = a.prompt("Email")
			}
			pw, err := a.secretInput(password, passwordFile, "Password")
			if err != nil {
				return err
			}
			if err := a.sessions.Login(ctx, email, pw); err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			fmt.Fprintf(a.out, "Logged in as %s.\n", a.sessions.Session().User().Name)
			return nil
		},
	}
}

func (a *App) registerCommand() *Command {
	var name, email, password, passwordFile string
	return &Command{
		Name:    "register",
		Summary: "Create a parent account",
		Usage:   "tasksparkle register --name NAME --email EMAIL [--password-file PATH]",
		Flags: func() *pflag.FlagSet {
			fs := flagSet("register")
			fs.StringVar(&name, "name", "", "parent name")
			fs.StringVar(&email, "email", "", "account email")
			fs.StringVar(&password, "password", "", "account password (visible in the process list; prefer --password-file)")
			fs.StringVar(&passwordFile, "password-file", "", "file containing the password, or - to prompt (default: prompt)")
			return fs
		},
		Run: func(ctx context.Context, args []string) error {
			if name == "" {
				name = a.prompt("Name")
			}
			if email == "" {
				email = a.prompt("Email")
			}
			pw, err := a.secretInput(password, passwordFile, "Password")
			if err != nil {
				return err
			}
			msg, err := a.sessions.Register(ctx, name, email, pw)
			if err != nil {
				return fmt.Errorf("registration failed: %w", err)
			}
			if msg == "" {
				msg = "Account created."
			}
			fmt.Fprintln(a.out, msg)
			fmt.Fprintln(a.out, "Run 'tasksparkle login' to start.")
			return nil
		},
	}
}

func (a *App) logoutCommand() *Command {
	return &Command{
		Name:    "logout",
		Summary: "Forget the stored session",
		Run: func(ctx context.Context, args []string) error {
			a.sessions.Logout()
			fmt.Fprintln(a.out, "Logged out.")
			return nil
		},
	}
}

func (a *App) whoamiCommand() *Command {
	return &Command{
		Name:    "whoami",
		Summary: "Show the logged-in parent",
		Run: a.authed(func(ctx context.Context, args []string) error {
			fmt.Fprintf(a.out, "%s (%s)\n", a.sessions.Session().User().Name, a.apiURL)
			return nil
		}),
	}
}

func (a *App) dashboardCommand() *Command {
	return &Command{
		Name:    "dashboard",
		Summary: "List children, tasks and rewards",
		Run: a.authed(func(ctx context.Context, args []string) error {
			d := a.tracker.LoadDashboard(ctx)
			renderDashboard(a.out, d)
			return d.Err
		}),
	}
}

func (a *App) childCommand() *Command {
	return &Command{
		Name:    "child",
		Summary: "Manage children",
		Subcommands: []*Command{
			{
				Name:    "add",
				Summary: "Add a child",
				Usage:   "tasksparkle child add <name>",
				Run: a.authed(func(ctx context.Context, args []string) error {
					if err := wantArgs(args, 1, "tasksparkle child add <name>"); err != nil {
						return err
					}
					child, err := a.tracker.AddChild(ctx, args[0])
					if err != nil {
						return err
					}
					if child != nil {
						fmt.Fprintf(a.out, "Added %s (#%d).\n", child.Name, child.ID)
					} else {
						fmt.Fprintln(a.out, "Child added.")
					}
					return nil
				}),
			},
			a.childShowCommand(),
			a.childDaysCommand(),
		},
	}
}

func (a *App) childShowCommand() *Command {
	var date string
	return &Command{
		Name:    "show",
		Summary: "Show a child's tasks for a day, rewards and history",
		Usage:   "tasksparkle child show <child-id> [--date YYYY-MM-DD]",
		Flags: func() *pflag.FlagSet {
			fs := flagSet("show")
			fs.StringVar(&date, "date", "", "day to show (default today)")
			return fs
		},
		Run: a.authed(func(ctx context.Context, args []string) error {
			if err := wantArgs(args, 1, "tasksparkle child show <child-id>"); err != nil {
				return err
			}
			child, day, err := a.resolveChildDay(ctx, args[0], date)
			if err != nil {
				return err
			}
			d, err := a.tracker.OpenChild(ctx, *child, day)
			if err != nil {
				return err
			}
			renderChild(a.out, d)
			return nil
		}),
	}
}

func (a *App) childDaysCommand() *Command {
	return &Command{
		Name:    "days",
		Summary: "List days with recorded task status for a child",
		Usage:   "tasksparkle child days <child-id>",
		Run: a.authed(func(ctx context.Context, args []string) error {
			if err := wantArgs(args, 1, "tasksparkle child days <child-id>"); err != nil {
				return err
			}
			id, err := parseID("child", args[0])
			if err != nil {
				return err
			}
			days, err := a.statuses.Days(id)
			if err != nil {
				return err
			}
			if len(days) == 0 {
				fmt.Fprintln(a.out, faintStyle.Render("No recorded days."))
			}
			for _, d := range days {
				m, err := a.statuses.Load(id, d)
				if err != nil {
					return err
				}
				done, missed := m.Counts()
				fmt.Fprintf(a.out, "%s  %s  %s\n", d,
					doneStyle.Render(fmt.Sprintf("%d done", done)),
					missedStyle.Render(fmt.Sprintf("%d not done", missed)))
			}
			return nil
		}),
	}
}

func (a *App) taskCommand() *Command {
	var value int
	var yes bool
	return &Command{
		Name:    "task",
		Summary: "Manage the task catalog",
		Subcommands: []*Command{
			{
				Name:    "list",
				Summary: "List tasks",
				Run: a.authed(func(ctx context.Context, args []string) error {
					tasks, err := a.tracker.Tasks(ctx)
					if err != nil {
						return err
					}
					renderTasks(a.out, tasks)
					return nil
				}),
			},
			{
				Name:    "add",
				Summary: "Add a task",
				Usage:   "tasksparkle task add <name> [--value N]",
				Flags: func() *pflag.FlagSet {
					fs := flagSet("add")
					fs.IntVar(&value, "value", 1, "point value")
					return fs
				},
				Run: a.authed(func(ctx context.Context, args []string) error {
					if err := wantArgs(args, 1, "tasksparkle task add <name> [--value N]"); err != nil {
						return err
					}
					task, err := a.tracker.AddTask(ctx, args[0], value)
					if err != nil {
						return err
					}
					if task != nil {
						fmt.Fprintf(a.out, "Added task %s (#%d).\n", task.Name, task.ID)
					} else {
						fmt.Fprintln(a.out, "Task added.")
					}
					return nil
				}),
			},
			{
				Name:    "rm",
				Summary: "Delete a task",
				Usage:   "tasksparkle task rm <task-id> [--yes]",
				Flags: func() *pflag.FlagSet {
					fs := flagSet("rm")
					fs.BoolVarP(&yes, "yes", "y", false, "skip confirmation")
					return fs
				},
				Run: a.authed(func(ctx context.Context, args []string) error {
					if err := wantArgs(args, 1, "tasksparkle task rm <task-id>"); err != nil {
						return err
					}
					id, err := parseID("task", args[0])
					if err != nil {
						return err
					}
					if !yes && !a.confirm("Delete this task?") {
						fmt.Fprintln(a.out, "Cancelled.")
						return nil
					}
					if err := a.tracker.DeleteTask(ctx, id); err != nil {
						return err
					}
					fmt.Fprintln(a.out, "Task deleted.")
					return nil
				}),
			},
		},
	}
}

func (a *App) rewardCommand() *Command {
	var cost int
	var yes bool
	return &Command{
		Name:    "reward",
		Summary: "Manage the reward catalog",
		Subcommands: []*Command{
			{
				Name:    "list",
				Summary: "List rewards",
				Run: a.authed(func(ctx context.Context, args []string) error {
					rewards, err := a.tracker.Rewards(ctx)
					if err != nil {
						return err
					}
					renderRewards(a.out, rewards)
					return nil
				}),
			},
			{
				Name:    "add",
				Summary: "Add a reward",
				Usage:   "tasksparkle reward add <name> --cost N",
				Flags: func() *pflag.FlagSet {
					fs := flagSet("add")
					fs.IntVar(&cost, "cost", 10, "cost in points")
					return fs
				},
				Run: a.authed(func(ctx context.Context, args []string) error {
					if err := wantArgs(args, 1, "tasksparkle reward add <name> --cost N"); err != nil {
						return err
					}
					reward, err := a.tracker.AddReward(ctx, args[0], cost)
					if err != nil {
						return err
					}
					if reward != nil {
						fmt.Fprintf(a.out, "Added reward %s (#%d).\n", reward.Name, reward.ID)
					} else {
						fmt.Fprintln(a.out, "Reward added.")
					}
					return nil
				}),
			},
			{
				Name:    "rm",
				Summary: "Delete a reward",
				Usage:   "tasksparkle reward rm <reward-id> [--yes]",
				Flags: func() *pflag.FlagSet {
					fs := flagSet("rm")
					fs.BoolVarP(&yes, "yes", "y", false, "skip confirmation")
					return fs
				},
				Run: a.authed(func(ctx context.Context, args []string) error {
					if err := wantArgs(args, 1, "tasksparkle reward rm <reward-id>"); err != nil {
						return err
					}
					id, err := parseID("reward", args[0])
					if err != nil {
						return err
					}
					if !yes && !a.confirm("Delete this reward?") {
						fmt.Fprintln(a.out, "Cancelled.")
						return nil
					}
					if err := a.tracker.DeleteReward(ctx, id); err != nil {
						return err
					}
					fmt.Fprintln(a.out, "Reward deleted.")
					return nil
				}),
			},
		},
	}
}

func (a *App) doneCommand() *Command {
	var date string
	return &Command{
		Name:    "done",
		Summary: "Mark a task done for the day and award points",
		Usage:   "tasksparkle done <child-id> <task-id> [--date YYYY-MM-DD]",
		Flags: func() *pflag.FlagSet {
			fs := flagSet("done")
			fs.StringVar(&date, "date", "", "day to score (default today)")
			return fs
		},
		Run: a.authed(func(ctx context.Context, args []string) error {
			if err := wantArgs(args, 2, "tasksparkle done <child-id> <task-id>"); err != nil {
				return err
			}
			child, day, err := a.resolveChildDay(ctx, args[0], date)
			if err != nil {
				return err
			}
			task, err := a.resolveTask(ctx, args[1])
			if err != nil {
				return err
			}
			total, err := a.tracker.CompleteTask(ctx, *child, *task, day)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s: %s %s. Total %s.\n", child.Name, task.Name,
				statusLabel(taskstatus.Done), scoreStyle.Render(fmt.Sprintf("%d pts", total)))
			return nil
		}),
	}
}

func (a *App) missCommand() *Command {
	var date string
	var yes bool
	return &Command{
		Name:    "miss",
		Summary: "Mark a task not done for the day and deduct points",
		Usage:   "tasksparkle miss <child-id> <task-id> [--date YYYY-MM-DD] [--yes]",
		Flags: func() *pflag.FlagSet {
			fs := flagSet("miss")
			fs.StringVar(&date, "date", "", "day to score (default today)")
			fs.BoolVarP(&yes, "yes", "y", false, "skip confirmation")
			return fs
		},
		Run: a.authed(func(ctx context.Context, args []string) error {
			if err := wantArgs(args, 2, "tasksparkle miss <child-id> <task-id>"); err != nil {
				return err
			}
			child, day, err := a.resolveChildDay(ctx, args[0], date)
			if err != nil {
				return err
			}
			task, err := a.resolveTask(ctx, args[1])
			if err != nil {
				return err
			}
			q := fmt.Sprintf("Remove %d points from %s for not doing %q?",
				-a.tracker.Config().MissedPoints, child.Name, task.Name)
			if !yes && !a.confirm(q) {
				fmt.Fprintln(a.out, "Cancelled.")
				return nil
			}
			total, err := a.tracker.MissTask(ctx, *child, *task, day)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s: %s %s. Total %s.\n", child.Name, task.Name,
				statusLabel(taskstatus.NotDone), scoreStyle.Render(fmt.Sprintf("%d pts", total)))
			return nil
		}),
	}
}

func (a *App) penalizeCommand() *Command {
	var date string
	var yes bool
	return &Command{
		Name:    "penalize",
		Summary: "Apply the penalty for a day without any task done",
		Usage:   "tasksparkle penalize <child-id> [--date YYYY-MM-DD] [--yes]",
		Flags: func() *pflag.FlagSet {
			fs := flagSet("penalize")
			fs.StringVar(&date, "date", "", "day to penalize (default today)")
			fs.BoolVarP(&yes, "yes", "y", false, "skip confirmation")
			return fs
		},
		Run: a.authed(func(ctx context.Context, args []string) error {
			if err := wantArgs(args, 1, "tasksparkle penalize <child-id>"); err != nil {
				return err
			}
			child, day, err := a.resolveChildDay(ctx, args[0], date)
			if err != nil {
				return err
			}
			q := fmt.Sprintf("Remove %d points from %s for not doing any task?",
				-a.tracker.Config().IdlePenalty, child.Name)
			if !yes && !a.confirm(q) {
				fmt.Fprintln(a.out, "Cancelled.")
				return nil
			}
			total, err := a.tracker.PenalizeIdleDay(ctx, *child, day)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s penalized for %s. Total %s.\n", child.Name, day,
				scoreStyle.Render(fmt.Sprintf("%d pts", total)))
			return nil
		}),
	}
}

func (a *App) clearDayCommand() *Command {
	var date string
	var yes bool
	return &Command{
		Name:    "clear-day",
		Summary: "Reset a day's task status so tasks can be scored again",
		Usage:   "tasksparkle clear-day <child-id> [--date YYYY-MM-DD] [--yes]",
		Flags: func() *pflag.FlagSet {
			fs := flagSet("clear-day")
			fs.StringVar(&date, "date", "", "day to clear (default today)")
			fs.BoolVarP(&yes, "yes", "y", false, "skip confirmation")
			return fs
		},
		Run: a.authed(func(ctx context.Context, args []string) error {
			if err := wantArgs(args, 1, "tasksparkle clear-day <child-id>"); err != nil {
				return err
			}
			id, err := parseID("child", args[0])
			if err != nil {
				return err
			}
			day, err := parseDay(date)
			if err != nil {
				return err
			}
			if !yes && !a.confirm(fmt.Sprintf("Clear task status for %s?", day)) {
				fmt.Fprintln(a.out, "Cancelled.")
				return nil
			}

			var ids []int64
			if tasks, err := a.tracker.Tasks(ctx); err != nil {
				a.logger.Warn("could not fetch tasks, clearing recorded entries only", "error", err)
			} else {
				ids = model.TaskIDs(tasks)
			}
			if err := a.tracker.ClearDay(id, day, ids); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Cleared %s.\n", day)
			return nil
		}),
	}
}

func (a *App) redeemCommand() *Command {
	var yes bool
	return &Command{
		Name:    "redeem",
		Summary: "Spend a child's points on a reward",
		Usage:   "tasksparkle redeem <child-id> <reward-id> [--yes]",
		Flags: func() *pflag.FlagSet {
			fs := flagSet("redeem")
			fs.BoolVarP(&yes, "yes", "y", false, "skip confirmation")
			return fs
		},
		Run: a.authed(func(ctx context.Context, args []string) error {
			if err := wantArgs(args, 2, "tasksparkle redeem <child-id> <reward-id>"); err != nil {
				return err
			}
			child, err := a.resolveChild(ctx, args[0])
			if err != nil {
				return err
			}
			rewardID, err := parseID("reward", args[1])
			if err != nil {
				return err
			}
			reward, err := a.tracker.FindReward(ctx, rewardID)
			if err != nil {
				return err
			}

			score := a.tracker.CurrentScore(ctx, *child)
			if score < reward.Cost {
				return fmt.Errorf("%s has %d points, %s costs %d: %w",
					child.Name, score, reward.Name, reward.Cost, tracker.ErrInsufficientPoints)
			}
			q := fmt.Sprintf("Redeem %q for %d points?", reward.Name, reward.Cost)
			if !yes && !a.confirm(q) {
				fmt.Fprintln(a.out, "Cancelled.")
				return nil
			}

			r, err := a.tracker.Redeem(ctx, *child, *reward, score)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Redeemed %s. %s has %s left.\n", reward.Name, child.Name,
				scoreStyle.Render(fmt.Sprintf("%d pts", r.Remaining)))
			if r.History != nil {
				fmt.Fprintln(a.out)
				renderHistory(a.out, r.History)
			}
			return nil
		}),
	}
}

func (a *App) historyCommand() *Command {
	return &Command{
		Name:    "history",
		Summary: "Show a child's redeemed rewards",
		Usage:   "tasksparkle history <child-id>",
		Run: a.authed(func(ctx context.Context, args []string) error {
			if err := wantArgs(args, 1, "tasksparkle history <child-id>"); err != nil {
				return err
			}
			id, err := parseID("child", args[0])
			if err != nil {
				return err
			}
			history, err := a.tracker.History(ctx, id)
			if err != nil {
				return err
			}
			renderHistory(a.out, history)
			return nil
		}),
	}
}

func (a *App) backupCommand() *Command {
	var passphrase, passphraseFile string
	var limit, days int
	passphraseFlag := func(fs *pflag.FlagSet) {
		fs.StringVar(&passphrase, "passphrase", "", "encryption passphrase (default $TASKSPARKLE_BACKUP_PASSPHRASE)")
		fs.StringVar(&passphraseFile, "passphrase-file", "", "file containing the passphrase, or - to prompt")
	}
	getPassphrase := func() (string, error) {
		if passphrase == "" && passphraseFile == "" {
			if p := os.Getenv("TASKSPARKLE_BACKUP_PASSPHRASE"); p != "" {
				return p, nil
			}
		}
		return a.secretInput(passphrase, passphraseFile, "Backup passphrase")
	}

	return &Command{
		Name:    "backup",
		Summary: "Encrypted backups of the local state to S3",
		Subcommands: []*Command{
			{
				Name:    "push",
				Summary: "Upload an encrypted backup now",
				Flags: func() *pflag.FlagSet {
					fs := flagSet("push")
					passphraseFlag(fs)
					return fs
				},
				Run: func(ctx context.Context, args []string) error {
					if !a.backups.Enabled() {
						return a.backupDisabled()
					}
					pass, err := getPassphrase()
					if err != nil {
						return err
					}
					b, err := a.backups.Push(ctx, pass)
					if err != nil {
						return err
					}
					fmt.Fprintf(a.out, "Backup #%d uploaded to %s (%d bytes).\n", b.ID, b.ObjectKey, b.SizeBytes)
					return nil
				},
			},
			{
				Name:    "list",
				Summary: "List recorded backups",
				Flags: func() *pflag.FlagSet {
					fs := flagSet("list")
					fs.IntVar(&limit, "limit", 20, "maximum backups to show")
					return fs
				},
				Run: func(ctx context.Context, args []string) error {
					backups, err := a.backups.List(limit)
					if err != nil {
						return err
					}
					if len(backups) == 0 {
						fmt.Fprintln(a.out, faintStyle.Render("No backups yet."))
					}
					for _, b := range backups {
						fmt.Fprintf(a.out, "#%d  %s  %s  %s\n", b.ID,
							b.CreatedAt.Local().Format("2006-01-02 15:04"), b.Status, b.Filename)
					}
					return nil
				},
			},
			{
				Name:    "restore",
				Summary: "Replace the local state with a backup",
				Usage:   "tasksparkle backup restore <backup-id> [--passphrase P]",
				Flags: func() *pflag.FlagSet {
					fs := flagSet("restore")
					passphraseFlag(fs)
					return fs
				},
				Run: func(ctx context.Context, args []string) error {
					if err := wantArgs(args, 1, "tasksparkle backup restore <backup-id>"); err != nil {
						return err
					}
					id, err := parseID("backup", args[0])
					if err != nil {
						return err
					}
					if !a.backups.Enabled() {
						return a.backupDisabled()
					}
					pass, err := getPassphrase()
					if err != nil {
						return err
					}
					if err := a.backups.Restore(ctx, id, pass); err != nil {
						return err
					}
					fmt.Fprintln(a.out, "Restored. The restored session takes effect on the next command.")
					return nil
				},
			},
			{
				Name:    "prune",
				Summary: "Delete backups older than the retention period",
				Flags: func() *pflag.FlagSet {
					fs := flagSet("prune")
					fs.IntVar(&days, "days", 30, "retention in days")
					return fs
				},
				Run: func(ctx context.Context, args []string) error {
					if !a.backups.Enabled() {
						return a.backupDisabled()
					}
					n, err := a.backups.Cleanup(ctx, days)
					if err != nil {
						return err
					}
					fmt.Fprintf(a.out, "Deleted %d backup(s).\n", n)
					return nil
				},
			},
		},
	}
}

func (a *App) backupDisabled() error {
	return errors.New("backups are not configured; set TASKSPARKLE_S3_BUCKET, TASKSPARKLE_S3_ACCESS_KEY and TASKSPARKLE_S3_SECRET_KEY")
}

func (a *App) resolveChild(ctx context.Context, arg string) (*model.Child, error) {
	id, err := parseID("child", arg)
	if err != nil {
		return nil, err
	}
	return a.tracker.FindChild(ctx, id)
}

func (a *App) resolveChildDay(ctx context.Context, arg, date string) (*model.Child, taskstatus.Day, error) {
	day, err := parseDay(date)
	if err != nil {
		return nil, "", err
	}
	child, err := a.resolveChild(ctx, arg)
	if err != nil {
		return nil, "", err
	}
	return child, day, nil
}

func (a *App) resolveTask(ctx context.Context, arg string) (*model.Task, error) {
	id, err := parseID("task", arg)
	if err != nil {
		return nil, err
	}
	return a.tracker.FindTask(ctx, id)
}
