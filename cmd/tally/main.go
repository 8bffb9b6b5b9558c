package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"tally/internal/amqp"
	"tally/internal/cli"
	"tally/internal/core"
	"tally/internal/services"
	"tally/internal/settle"
	"tally/internal/storage"
)

const usageText = `Usage: tally <command> [flags]

Users:
  add-user    -name NAME
  del-user    -id ID
  users

Personal transactions:
  add-tx      -user ID -kind income|expense -amount N -category C [-date YYYY-MM-DD] [-note TEXT]
  del-tx      -id ID
  txns        [-user ID] [-year Y [-month M]]

Shared expenses:
  add-shared  -title T -total N -payer ID -category C -splits "ID:VALUE[%],..." [-date YYYY-MM-DD] [-note TEXT]
  get-shared  -id ID
  del-shared  -id ID
  shared      [-year Y [-month M]]

Reports:
  balances
  settle
  report      -year Y -month M
  summary     -user ID -year Y -month M

Categories:
  categories
`

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}
	command, args := os.Args[1], os.Args[2:]

	if command == "help" || command == "-h" || command == "--help" {
		fmt.Print(usageText)
		return
	}
	if command == "categories" {
		for _, c := range core.DefaultCategories {
			fmt.Println(c)
		}
		return
	}

	cfg := cli.LoadAndValidateConfig(logger)
	store := cli.InitStore(logger, cfg.SQLiteDBPath)
	defer store.Close()

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			// The ledger works without the broker; events are just skipped.
			logger.Warn("AMQP unavailable, events will not be published", "error", err)
		} else {
			defer amqpClient.Close()
		}
	}

	reports := services.NewReportService(store)
	ledger := services.NewLedgerService(store, amqpClient, reports)

	app := &app{ledger: ledger, reports: reports}

	ctx := context.Background()
	if err := app.run(ctx, command, args); err != nil {
		fmt.Fprintf(os.Stderr, "tally: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation), errors.Is(err, core.ErrDuplicateName):
		return 2
	case errors.Is(err, core.ErrNotFound):
		return 3
	default:
		return 1
	}
}

type app struct {
	ledger  *services.LedgerService
	reports *services.ReportService
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "add-user":
		return a.addUser(ctx, args)
	case "del-user":
		return a.deleteUser(ctx, args)
	case "users":
		return a.listUsers(ctx)
	case "add-tx":
		return a.addTransaction(ctx, args)
	case "del-tx":
		return a.deleteTransaction(ctx, args)
	case "txns":
		return a.listTransactions(ctx, args)
	case "add-shared":
		return a.addShared(ctx, args)
	case "get-shared":
		return a.getShared(ctx, args)
	case "del-shared":
		return a.deleteShared(ctx, args)
	case "shared":
		return a.listShared(ctx, args)
	case "balances":
		return a.balances(ctx)
	case "settle":
		return a.settlements(ctx)
	case "report":
		return a.report(ctx, args)
	case "summary":
		return a.summary(ctx, args)
	default:
		fmt.Fprint(os.Stderr, usageText)
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *app) addUser(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add-user", flag.ExitOnError)
	name := fs.String("name", "", "user name")
	fs.Parse(args)

	id, err := a.ledger.AddUser(ctx, *name)
	if err != nil {
		return err
	}
	fmt.Printf("user %d added\n", id)
	return nil
}

func (a *app) deleteUser(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("del-user", flag.ExitOnError)
	id := fs.Int64("id", 0, "user id")
	fs.Parse(args)

	if err := a.ledger.DeleteUser(ctx, *id); err != nil {
		return err
	}
	fmt.Printf("user %d deleted\n", *id)
	return nil
}

func (a *app) listUsers(ctx context.Context) error {
	users, err := a.ledger.ListUsers(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME")
	for _, u := range users {
		fmt.Fprintf(w, "%d\t%s\n", u.ID, u.Name)
	}
	return w.Flush()
}

func (a *app) addTransaction(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add-tx", flag.ExitOnError)
	user := fs.Int64("user", 0, "user id")
	kind := fs.String("kind", "", "income or expense")
	amount := fs.String("amount", "", "amount, e.g. 12.50")
	category := fs.String("category", "", "category")
	date := fs.String("date", "", "date (YYYY-MM-DD), defaults to today")
	note := fs.String("note", "", "optional note")
	fs.Parse(args)

	value, err := core.ParseAmount(*amount)
	if err != nil {
		return err
	}
	d, err := parseDateOrToday(*date)
	if err != nil {
		return err
	}

	id, err := a.ledger.AddTransaction(ctx, core.Transaction{
		UserID:   *user,
		Kind:     core.TransactionKind(*kind),
		Amount:   value,
		Category: *category,
		Note:     *note,
		Date:     d,
	})
	if err != nil {
		return err
	}
	fmt.Printf("transaction %d added\n", id)
	return nil
}

func (a *app) deleteTransaction(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("del-tx", flag.ExitOnError)
	id := fs.Int64("id", 0, "transaction id")
	fs.Parse(args)

	if err := a.ledger.DeleteTransaction(ctx, *id); err != nil {
		return err
	}
	fmt.Printf("transaction %d deleted\n", *id)
	return nil
}

func (a *app) listTransactions(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("txns", flag.ExitOnError)
	user := fs.Int64("user", 0, "filter by user id")
	year := fs.Int("year", 0, "filter by year")
	month := fs.Int("month", 0, "filter by month (requires -year)")
	fs.Parse(args)

	txns, err := a.ledger.ListTransactions(ctx, storage.TransactionFilter{
		UserID: *user,
		Period: storage.PeriodFilter{Year: *year, Month: *month},
	})
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tUSER\tKIND\tAMOUNT\tCATEGORY\tNOTE")
	for _, tx := range txns {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%s\t%s\n",
			tx.ID, tx.Date, tx.UserID, tx.Kind, core.FormatAmount(tx.Amount), tx.Category, tx.Note)
	}
	return w.Flush()
}

func (a *app) addShared(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add-shared", flag.ExitOnError)
	title := fs.String("title", "", "expense title")
	total := fs.String("total", "", "total amount")
	payer := fs.Int64("payer", 0, "payer user id")
	category := fs.String("category", "", "category")
	date := fs.String("date", "", "date (YYYY-MM-DD), defaults to today")
	note := fs.String("note", "", "optional note")
	splits := fs.String("splits", "", `splits, e.g. "1:50%,2:50%" or "1:30,2:60.50"`)
	fs.Parse(args)

	totalValue, err := core.ParseAmount(*total)
	if err != nil {
		return err
	}
	d, err := parseDateOrToday(*date)
	if err != nil {
		return err
	}
	parsedSplits, err := parseSplits(*splits)
	if err != nil {
		return err
	}

	id, err := a.ledger.AddSharedExpense(ctx, core.SharedExpense{
		Title:       *title,
		TotalAmount: totalValue,
		Date:        d,
		PayerID:     *payer,
		Category:    *category,
		Note:        *note,
		Splits:      parsedSplits,
	})
	if err != nil {
		return err
	}
	fmt.Printf("shared expense %d added\n", id)
	return nil
}

func (a *app) getShared(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("get-shared", flag.ExitOnError)
	id := fs.Int64("id", 0, "shared expense id")
	fs.Parse(args)

	e, err := a.ledger.GetSharedExpense(ctx, *id)
	if err != nil {
		return err
	}
	names, err := a.userNames(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("#%d %s  %s  %s  paid by %s  (%s)\n",
		e.ID, e.Date, e.Title, core.FormatAmount(e.TotalAmount), names.label(e.PayerID), e.Category)
	if e.Note != "" {
		fmt.Printf("note: %s\n", e.Note)
	}

	shares, err := e.Shares()
	if err != nil {
		return err
	}
	for _, s := range e.Splits {
		switch s.Kind {
		case core.Percentage:
			fmt.Printf("  %s: %g%% = %s\n", names.label(s.UserID), s.Value, core.FormatAmount(shares[s.UserID]))
		default:
			fmt.Printf("  %s: %s\n", names.label(s.UserID), core.FormatAmount(s.Value))
		}
	}
	return nil
}

func (a *app) deleteShared(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("del-shared", flag.ExitOnError)
	id := fs.Int64("id", 0, "shared expense id")
	fs.Parse(args)

	if err := a.ledger.DeleteSharedExpense(ctx, *id); err != nil {
		return err
	}
	fmt.Printf("shared expense %d deleted\n", *id)
	return nil
}

func (a *app) listShared(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("shared", flag.ExitOnError)
	year := fs.Int("year", 0, "filter by year")
	month := fs.Int("month", 0, "filter by month (requires -year)")
	fs.Parse(args)

	expenses, err := a.ledger.ListSharedExpenses(ctx, storage.PeriodFilter{Year: *year, Month: *month})
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tTITLE\tTOTAL\tPAYER\tCATEGORY\tSPLITS")
	for _, e := range expenses {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\t%d\n",
			e.ID, e.Date, e.Title, core.FormatAmount(e.TotalAmount), e.PayerID, e.Category, len(e.Splits))
	}
	return w.Flush()
}

func (a *app) balances(ctx context.Context) error {
	balances, err := a.reports.Balances(ctx)
	if err != nil {
		return err
	}
	names, err := a.userNames(ctx)
	if err != nil {
		return err
	}

	ids := make([]int64, 0, len(balances))
	for id := range balances {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		b := balances[id]
		switch {
		case b > core.Epsilon:
			fmt.Printf("%s is owed %s\n", names.label(id), core.FormatAmount(b))
		case b < -core.Epsilon:
			fmt.Printf("%s owes %s\n", names.label(id), core.FormatAmount(-b))
		default:
			fmt.Printf("%s is settled\n", names.label(id))
		}
	}
	return nil
}

func (a *app) settlements(ctx context.Context) error {
	transfers, err := a.reports.Settlements(ctx)
	if err != nil {
		return err
	}
	if len(transfers) == 0 {
		fmt.Println("all settled")
		return nil
	}
	names, err := a.userNames(ctx)
	if err != nil {
		return err
	}
	for _, t := range transfers {
		fmt.Printf("%s pays %s %s\n", names.label(t.PayerID), names.label(t.ReceiverID), core.FormatAmount(t.Amount))
	}
	return nil
}

func (a *app) report(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	year := fs.Int("year", 0, "year")
	month := fs.Int("month", 0, "month")
	fs.Parse(args)

	report, err := a.reports.MonthlyReport(ctx, *year, *month)
	if err != nil {
		return err
	}
	names, err := a.userNames(ctx)
	if err != nil {
		return err
	}
	printReport(os.Stdout, report, names)
	return nil
}

func (a *app) summary(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	user := fs.Int64("user", 0, "user id")
	year := fs.Int("year", 0, "year")
	month := fs.Int("month", 0, "month")
	fs.Parse(args)

	um, err := a.reports.UserMonthlySummary(ctx, *user, *year, *month)
	if err != nil {
		return err
	}
	names, err := a.userNames(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("%s, %04d-%02d\n", names.label(*user), *year, *month)
	fmt.Printf("  income:   %s\n", core.FormatAmount(um.Income))
	fmt.Printf("  expenses: %s (personal %s + shared %s)\n",
		core.FormatAmount(um.TotalExpenses), core.FormatAmount(um.Expenses), core.FormatAmount(um.SharedShare))
	fmt.Printf("  savings:  %s\n", core.FormatAmount(um.Savings))
	return nil
}

func printReport(out *os.File, report *settle.MonthlyReport, names userNames) {
	fmt.Fprintf(out, "Report %04d-%02d\n\n", report.Year, report.Month)

	ids := make([]int64, 0, len(report.PerUser))
	for id := range report.PerUser {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "USER\tINCOME\tEXPENSES\tSHARED\tTOTAL\tSAVINGS")
	for _, id := range ids {
		um := report.PerUser[id]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			names.label(id),
			core.FormatAmount(um.Income),
			core.FormatAmount(um.Expenses),
			core.FormatAmount(um.SharedShare),
			core.FormatAmount(um.TotalExpenses),
			core.FormatAmount(um.Savings))
	}
	fmt.Fprintf(w, "household\t%s\t%s\t\t\t%s\n",
		core.FormatAmount(report.Household.Income),
		core.FormatAmount(report.Household.Expenses),
		core.FormatAmount(report.Household.Savings))
	w.Flush()

	if len(report.ByCategory) == 0 {
		return
	}
	fmt.Fprintln(out, "\nBy category:")
	cats := make([]string, 0, len(report.ByCategory))
	for c := range report.ByCategory {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	for _, c := range cats {
		fmt.Fprintf(out, "  %s: %s\n", c, core.FormatAmount(report.ByCategory[c]))
	}
}

type userNames map[int64]string

func (n userNames) label(id int64) string {
	if name, ok := n[id]; ok {
		return name
	}
	return strconv.FormatInt(id, 10)
}

func (a *app) userNames(ctx context.Context) (userNames, error) {
	users, err := a.ledger.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	names := make(userNames, len(users))
	for _, u := range users {
		names[u.ID] = u.Name
	}
	return names, nil
}

func parseDateOrToday(s string) (core.Date, error) {
	if strings.TrimSpace(s) == "" {
		now := time.Now()
		return core.NewDate(now.Year(), int(now.Month()), now.Day()), nil
	}
	return core.ParseDate(s)
}

// parseSplits parses "1:50%,2:50%" (percentages) or "1:30,2:60.50"
// (fixed amounts). Mixing the two forms is rejected by validation.
func parseSplits(s string) ([]core.Split, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("%w: missing -splits", core.ErrValidation)
	}
	var splits []core.Split
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		userPart, valuePart, found := strings.Cut(part, ":")
		if !found {
			return nil, fmt.Errorf("%w: split %q must look like ID:VALUE", core.ErrValidation, part)
		}
		userID, err := strconv.ParseInt(strings.TrimSpace(userPart), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid user id in split %q", core.ErrValidation, part)
		}

		kind := core.Fixed
		valuePart = strings.TrimSpace(valuePart)
		if strings.HasSuffix(valuePart, "%") {
			kind = core.Percentage
			valuePart = strings.TrimSuffix(valuePart, "%")
		}
		value, err := strconv.ParseFloat(valuePart, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid value in split %q", core.ErrValidation, part)
		}

		splits = append(splits, core.Split{UserID: userID, Kind: kind, Value: value})
	}
	return splits, nil
}
