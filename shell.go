package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gym-management/gym"
)

const maxPINAttempts = 3

// runShell is the interactive operator console.
func (a *app) runShell(ctx context.Context) error {
	if err := a.login(ctx); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Welcome to the %s membership desk!\n", a.cfg.GymName)
	a.printHelp()

	for {
		cmd, ok := a.p.line("\n> ")
		if !ok {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		switch strings.ToLower(cmd) {
		case "":
		case "add member":
			a.handleAddMember(ctx)
		case "list members":
			a.handleListMembers(ctx)
		case "search member":
			a.handleSearchMembers(ctx)
		case "show member":
			a.handleShowMember(ctx)
		case "edit member":
			a.handleEditMember(ctx)
		case "renew member":
			a.handleRenewMember(ctx)
		case "delete member":
			a.handleDeleteMember(ctx)
		case "reconcile":
			a.handleReconcile(ctx)
		case "remind":
			a.handleRemind(ctx)
		case "license":
			a.handleLicense(ctx)
		case "status":
			if err := a.printStatus(ctx); err != nil {
				fmt.Fprintf(a.out, "Error: %v\n", err)
			}
		case "history":
			a.handleHistory(ctx)
		case "add bill":
			a.handleAddBill(ctx)
		case "list bills":
			a.handleListBills(ctx)
		case "delete bill":
			a.handleDeleteBill(ctx)
		case "summary":
			a.handleSummary(ctx)
		case "set pin":
			_ = a.setPIN(ctx)
		case "help":
			a.printHelp()
		case "exit", "quit":
			fmt.Fprintln(a.out, "Goodbye!")
			return nil
		default:
			fmt.Fprintln(a.out, "Unknown command. Type 'help' to see the available commands.")
		}
	}
}

func (a *app) printHelp() {
	fmt.Fprintln(a.out, "Available commands:")
	fmt.Fprintln(a.out, "  Members:   add member, list members, search member, show member, edit member, renew member, delete member")
	fmt.Fprintln(a.out, "  Reminders: remind, history, reconcile")
	fmt.Fprintln(a.out, "  License:   license, status")
	fmt.Fprintln(a.out, "  Expenses:  add bill, list bills, delete bill, summary")
	fmt.Fprintln(a.out, "  System:    set pin, help, exit")
}

// login asks for the operator PIN when one is set.
func (a *app) login(ctx context.Context) error {
	has, err := a.mgr.HasOperatorPIN(ctx)
	if err != nil || !has {
		return err
	}
	for i := 0; i < maxPINAttempts; i++ {
		pin, err := a.p.secret("Operator PIN: ")
		if err != nil {
			return err
		}
		err = a.mgr.CheckOperatorPIN(ctx, pin)
		if err == nil {
			return nil
		}
		if !errors.Is(err, gym.ErrWrongPIN) {
			return err
		}
		fmt.Fprintln(a.out, "Wrong PIN.")
	}
	fmt.Fprintln(a.out, "Too many wrong attempts.")
	return reported(gym.ErrWrongPIN)
}

// ------------------ Members ------------------

func (a *app) handleAddMember(ctx context.Context) {
	var in gym.MemberInput
	var ok bool
	var err error

	if in.Name, ok = a.p.line("Name: "); !ok {
		return
	}
	age, ok, err := a.p.optionalInt("Age: ")
	if !ok {
		return
	}
	if err != nil {
		fmt.Fprintf(a.out, "Error: %v\n", err)
		return
	}
	if age != nil {
		in.Age = *age
	}
	if in.Gender, ok = a.p.line("Gender (Male/Female/Other): "); !ok {
		return
	}
	if in.Phone, ok = a.p.line("Phone: "); !ok {
		return
	}
	if in.Address, ok = a.p.line("Address: "); !ok {
		return
	}
	months, ok, err := a.p.optionalInt("Duration in months: ")
	if !ok {
		return
	}
	if err != nil || months == nil {
		fmt.Fprintln(a.out, "Error: duration is required")
		return
	}
	in.DurationMonths = *months
	fees, ok, err := a.p.optionalFloat("Fees: ")
	if !ok {
		return
	}
	if err != nil {
		fmt.Fprintf(a.out, "Error: %v\n", err)
		return
	}
	if fees != nil {
		in.Fees = *fees
	}
	if in.PaymentMethod, ok = a.p.line("Payment method (" + strings.Join(gym.PaymentMethods, "/") + "): "); !ok {
		return
	}
	activation, ok, err := a.p.optionalDate("Activation date (DD-MM-YYYY, Enter for today): ")
	if !ok {
		return
	}
	if err != nil {
		fmt.Fprintf(a.out, "Error: %v\n", err)
		return
	}
	if activation != nil {
		in.ActivationDate = *activation
	}

	m, err := a.mgr.RegisterMember(ctx, in)
	if err != nil {
		fmt.Fprintf(a.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(a.out, "Registered %s with ID %d. Membership runs until %s.\n", m.Name, m.ID, gym.FormatDate(m.ExpirationDate))
}

func (a *app) handleListMembers(ctx context.Context) {
	status, ok := a.p.line("Status (active/inactive/waiting, Enter for all): ")
	if !ok {
		return
	}
	f, err := memberFilter(status)
	if err != nil {
		fmt.Fprintf(a.out, "Error: %v\n", err)
		return
	}
	members, err := a.mgr.FindMembers(ctx, f)
	if err != nil {
		fmt.Fprintf(a.out, "Error: %v\n", err)
		return
	}
	a.printMembers(members)
}

func (a *app) handleSearchMembers(ctx context.Context) {
	q, ok := a.p.line("Name or phone: ")
	if !ok {
		return
	}
	members, err := a.mgr.SearchMembers(ctx, q)
	if err != nil {
		fmt.Fprintf(a.out, "Error: %v\n", err)
		return
	}
	if len(members) == 0 {
		fmt.Fprintf(a.out, "No members found matching '%s'.\n", q)
		return
	}
	fmt.Fprintf(a.out, "Found %d member(s) matching '%s':\n", len(members), q)
	a.printMembers(members)
}

// askMember reads an ID and loads the member, reporting problems itself.
func (a *app) askMember(ctx context.Context) (*gym.Member, bool) {
	id, ok, err := a.p.id("Member ID: ")
	if !ok {
		return nil, false
	}
	if err != nil {
		fmt.Fprintln(a.out, err)
		return nil, false
	}
	m, err := a.mgr.GetMember(ctx, id)
	if errors.Is(err, gym.ErrMemberNotFound) {
		fmt.Fprintf(a.out, "Error: Member with ID %d not found\n", id)
		return nil, false
	}
	if err != nil {
		fmt.Fprintf(a.out, "Error: %v\n", err)
		return nil, false
	}
	return m, true
}

func (a *app) handleShowMember(ctx context.Context) {
	m, ok := a.askMember(ctx)
	if !ok {
		return
	}
	a.printMemberDetails(m)
}

func (a *app) printMemberDetails(m *gym.Member) {
	fmt.Fprintf(a.out, "ID:          %d\n", m.ID)
	fmt.Fprintf(a.out, "Name:        %s\n", m.Name)
	fmt.Fprintf(a.out, "Age:         %d\n", m.Age)
	fmt.Fprintf(a.out, "Gender:      %s\n", m.Gender)
	fmt.Fprintf(a.out, "Phone:       %s\n", m.Phone)
	fmt.Fprintf(a.out, "Address:     %s\n", m.Address)
	fmt.Fprintf(a.out, "Duration:    %s\n", gym.MonthsLabel(m.DurationMonths))
	fmt.Fprintf(a.out, "Fees:        %.2f (%s)\n", m.Fees, m.PaymentMethod)
	fmt.Fprintf(a.out, "Activated:   %s\n", gym.FormatDate(m.ActivationDate))
	fmt.Fprintf(a.out, "Expires:     %s\n", gym.FormatDate(m.ExpirationDate))
	fmt.Fprintf(a.out, "Status:      %s\n", m.Status)
	if m.Status == gym.StatusInactive {
		fmt.Fprintf(a.out, "Reminded:    %t\n", m.Notified)
	}
}

func (a *app) handleEditMember(ctx context.Context) {
	m, ok := a.askMember(ctx)
	if !ok {
		return
	}
	a.printMemberDetails(m)
	fmt.Fprintln(a.out, "Press Enter to keep a value.")

	var (
		upd gym.MemberUpdate
		err error
	)
	if upd.Name, ok = a.p.optionalString("Name: "); !ok {
		return
	}
	if upd.Age, ok, err = a.p.optionalInt("Age: "); !ok || a.failed(err) {
		return
	}
	if upd.Gender, ok = a.p.optionalString("Gender: "); !ok {
		return
	}
	if upd.Phone, ok = a.p.optionalString("Phone: "); !ok {
		return
	}
	if upd.Address, ok = a.p.optionalString("Address: "); !ok {
		return
	}
	if upd.DurationMonths, ok, err = a.p.optionalInt("Duration in months: "); !ok || a.failed(err) {
		return
	}
	if upd.Fees, ok, err = a.p.optionalFloat("Fees: "); !ok || a.failed(err) {
		return
	}
	if upd.PaymentMethod, ok = a.p.optionalString("Payment method: "); !ok {
		return
	}
	if upd.ActivationDate, ok, err = a.p.optionalDate("Activation date (DD-MM-YYYY): "); !ok || a.failed(err) {
		return
	}
	status, ok := a.p.optionalString("Status (Active/Inactive): ")
	if !ok {
		return
	}
	if status != nil {
		s, err := parseStatus(*status)
		if a.failed(err) {
			return
		}
		upd.Status = &s
	}

	updated, err := a.mgr.UpdateMember(ctx, m.ID, upd)
	if a.failed(err) {
		return
	}
	fmt.Fprintf(a.out, "Updated %s: %s until %s.\n", updated.Name, updated.Status, gym.FormatDate(updated.ExpirationDate))
}

func parseStatus(s string) (gym.Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active":
		return gym.StatusActive, nil
	case "inactive":
		return gym.StatusInactive, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

func (a *app) handleRenewMember(ctx context.Context) {
	m, ok := a.askMember(ctx)
	if !ok {
		return
	}
	months, ok, err := a.p.optionalInt(fmt.Sprintf("Duration in months [%d]: ", m.DurationMonths))
	if !ok || a.failed(err) {
		return
	}
	if months == nil {
		months = &m.DurationMonths
	}
	fees, ok, err := a.p.optionalFloat(fmt.Sprintf("Fees [%.2f]: ", m.Fees))
	if !ok || a.failed(err) {
		return
	}
	if fees == nil {
		fees = &m.Fees
	}
	payment, ok := a.p.optionalString(fmt.Sprintf("Payment method [%s]: ", m.PaymentMethod))
	if !ok {
		return
	}
	if payment == nil {
		payment = &m.PaymentMethod
	}

	renewed, err := a.mgr.RenewMembership(ctx, m.ID, *months, *fees, *payment)
	if a.failed(err) {
		return
	}
	fmt.Fprintf(a.out, "Renewed %s until %s.\n", renewed.Name, gym.FormatDate(renewed.ExpirationDate))
}

func (a *app) handleDeleteMember(ctx context.Context) {
	m, ok := a.askMember(ctx)
	if !ok {
		return
	}
	if !a.p.yes(fmt.Sprintf("Delete %s (ID %d) and their reminder history?", m.Name, m.ID)) {
		fmt.Fprintln(a.out, "Kept.")
		return
	}
	if a.failed(a.mgr.DeleteMember(ctx, m.ID)) {
		return
	}
	fmt.Fprintf(a.out, "Deleted %s.\n", m.Name)
}

// ------------------ Reminders and license ------------------

func (a *app) handleReconcile(ctx context.Context) {
	res, err := a.mgr.Reconcile(ctx, a.mgr.Today())
	if a.failed(err) {
		return
	}
	fmt.Fprintf(a.out, "Checked %d active member(s); %d lapsed.\n", res.Checked, len(res.Expired))
}

func (a *app) handleRemind(ctx context.Context) {
	month, ok := a.p.line("Expired in month (YYYY-MM, Enter for all): ")
	if !ok {
		return
	}
	var opts gym.ReminderOptions
	if month != "" {
		m, err := gym.ParseMonth(month)
		if a.failed(err) {
			return
		}
		opts.Month = &m
	}
	_ = a.remind(ctx, opts)
}

func (a *app) handleLicense(ctx context.Context) {
	key, ok := a.p.line("License key: ")
	if !ok {
		return
	}
	_ = a.validateLicense(ctx, key)
}

func (a *app) handleHistory(ctx context.Context) {
	log, err := a.mgr.NotificationLog(ctx, 20)
	if a.failed(err) {
		return
	}
	if len(log) == 0 {
		fmt.Fprintln(a.out, "No reminders sent yet.")
		return
	}
	fmt.Fprintf(a.out, "%-17s %-8s %-16s %s\n", "Sent", "Member", "Phone", "Run")
	fmt.Fprintln(a.out, strings.Repeat("-", 80))
	for _, r := range log {
		fmt.Fprintf(a.out, "%-17s %-8d %-16s %s\n", r.SentAt.Local().Format("02-01-2006 15:04"), r.MemberID, r.Phone, r.RunID)
	}
}

// ------------------ Bills ------------------

func (a *app) handleAddBill(ctx context.Context) {
	var in gym.BillInput
	var ok bool
	if in.Title, ok = a.p.line("Title: "); !ok {
		return
	}
	amount, ok, err := a.p.optionalFloat("Amount: ")
	if !ok || a.failed(err) {
		return
	}
	if amount != nil {
		in.Amount = *amount
	}
	date, ok, err := a.p.optionalDate("Date (DD-MM-YYYY, Enter for today): ")
	if !ok || a.failed(err) {
		return
	}
	if date != nil {
		in.Date = *date
	}
	if in.Note, ok = a.p.line("Note: "); !ok {
		return
	}

	b, err := a.mgr.AddBill(ctx, in)
	if a.failed(err) {
		return
	}
	fmt.Fprintf(a.out, "Recorded bill %d: %s %.2f on %s.\n", b.ID, b.Title, b.Amount, gym.FormatDate(b.Date))
}

// askMonth returns the entered month, or the current one for a blank answer.
func (a *app) askMonth() (gym.Month, bool) {
	s, ok := a.p.line("Month (YYYY-MM, Enter for this month): ")
	if !ok {
		return gym.Month{}, false
	}
	if s == "" {
		return gym.MonthOf(a.mgr.Today()), true
	}
	m, err := gym.ParseMonth(s)
	if a.failed(err) {
		return gym.Month{}, false
	}
	return m, true
}

func (a *app) handleListBills(ctx context.Context) {
	month, ok := a.askMonth()
	if !ok {
		return
	}
	bills, err := a.mgr.ListBills(ctx, &month)
	if a.failed(err) {
		return
	}
	if len(bills) == 0 {
		fmt.Fprintf(a.out, "No bills recorded for %s.\n", month)
		return
	}
	var total float64
	fmt.Fprintf(a.out, "%-5s %-12s %-30s %10s  %s\n", "ID", "Date", "Title", "Amount", "Note")
	fmt.Fprintln(a.out, strings.Repeat("-", 80))
	for _, b := range bills {
		fmt.Fprintf(a.out, "%-5d %-12s %-30s %10.2f  %s\n", b.ID, gym.FormatDate(b.Date), b.Title, b.Amount, b.Note)
		total += b.Amount
	}
	fmt.Fprintf(a.out, "%-49s %10.2f\n", "Total", total)
}

func (a *app) handleDeleteBill(ctx context.Context) {
	id, ok, err := a.p.id("Bill ID: ")
	if !ok || a.failed(err) {
		return
	}
	if a.failed(a.mgr.DeleteBill(ctx, id)) {
		return
	}
	fmt.Fprintf(a.out, "Deleted bill %d.\n", id)
}

func (a *app) handleSummary(ctx context.Context) {
	month, ok := a.askMonth()
	if !ok {
		return
	}
	s, err := a.mgr.MonthlySummary(ctx, month)
	if a.failed(err) {
		return
	}
	fmt.Fprintf(a.out, "Summary for %s\n", month)
	fmt.Fprintf(a.out, "  New memberships: %d\n", s.NewMembers)
	fmt.Fprintf(a.out, "  Fees collected:  %.2f\n", s.Revenue)
	fmt.Fprintf(a.out, "  Bills:           %.2f\n", s.Expenses)
	fmt.Fprintf(a.out, "  Net:             %.2f\n", s.Net())
}

// failed prints err and reports whether there was one.
func (a *app) failed(err error) bool {
	if err == nil {
		return false
	}
	fmt.Fprintf(a.out, "Error: %v\n", err)
	return true
}
