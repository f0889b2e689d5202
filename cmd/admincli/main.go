// Package main provides the admin CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/ourtube/internal/api/connect"
)

var (
	app    = kingpin.New("ourtube-admincli", "ourtube admin client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Admin token (or set ADMIN_TOKEN env)").Envar("ADMIN_TOKEN").String()
	user   = app.Flag("user", "User ID recorded in the audit trail").Short('u').Default("admin").String()

	// open command
	openCmd     = app.Command("open", "Open a tenant")
	openTenant  = openCmd.Arg("tenant", "Tenant ID").Required().String()
	openChannel = openCmd.Arg("channel", "Playback channel").String()

	// close command
	closeCmd    = app.Command("close", "Close a tenant")
	closeTenant = closeCmd.Arg("tenant", "Tenant ID").Required().String()

	// channel command
	channelCmd     = app.Command("channel", "Select the playback channel of a tenant")
	channelTenant  = channelCmd.Arg("tenant", "Tenant ID").Required().String()
	channelChannel = channelCmd.Arg("channel", "Channel ID").Required().String()

	// join command
	joinCmd     = app.Command("join", "Record a member joining a channel")
	joinTenant  = joinCmd.Arg("tenant", "Tenant ID").Required().String()
	joinChannel = joinCmd.Arg("channel", "Channel ID").Required().String()
	joinMember  = joinCmd.Arg("member", "Member ID").Required().String()
	joinName    = joinCmd.Arg("name", "Display name").String()

	// leave command
	leaveCmd    = app.Command("leave", "Record a member leaving")
	leaveTenant = leaveCmd.Arg("tenant", "Tenant ID").Required().String()
	leaveMember = leaveCmd.Arg("member", "Member ID").Required().String()

	// status command
	statusCmd    = app.Command("status", "Get tenant status")
	statusTenant = statusCmd.Arg("tenant", "Tenant ID").Required().String()

	// tenants command
	tenantsCmd = app.Command("tenants", "List open tenants").Alias("list")

	// audit command
	auditCmd   = app.Command("audit", "Show recent audit entries")
	auditLimit = auditCmd.Flag("limit", "Number of entries").Default("20").Int()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Check admin token
	if *token == "" {
		fmt.Println("Error: admin token is required (use --token or ADMIN_TOKEN env)")
		os.Exit(1)
	}

	client := apiconnect.NewAdminClient(http.DefaultClient, *server, *token)

	ctx := context.Background()

	var err error
	switch command {
	case openCmd.FullCommand():
		err = client.OpenTenant(ctx, &apiconnect.OpenTenantRequest{Tenant: *openTenant, Channel: *openChannel})
		printDone(err, "Tenant opened")
	case closeCmd.FullCommand():
		err = client.CloseTenant(ctx, &apiconnect.CloseTenantRequest{Tenant: *closeTenant})
		printDone(err, "Tenant closed")
	case channelCmd.FullCommand():
		selectChannel(ctx, client)
	case joinCmd.FullCommand():
		join(ctx, client)
	case leaveCmd.FullCommand():
		err = client.Leave(ctx, &apiconnect.LeaveRequest{Tenant: *leaveTenant, Member: *leaveMember})
		printDone(err, "Member left")
	case statusCmd.FullCommand():
		status(ctx, client)
	case tenantsCmd.FullCommand():
		listTenants(ctx, client)
	case auditCmd.FullCommand():
		listAudit(ctx, client)
	}
}

func fail(err error) {
	fmt.Printf("Error: %v\n", err)
	os.Exit(1)
}

func printDone(err error, msg string) {
	if err != nil {
		fail(err)
	}
	fmt.Println(msg)
}

func selectChannel(ctx context.Context, client *apiconnect.AdminClient) {
	resp, err := client.SelectChannel(ctx, &apiconnect.SelectChannelRequest{
		Tenant:  *channelTenant,
		User:    *user,
		Channel: *channelChannel,
	})
	if err != nil {
		fail(err)
	}
	if resp.Changed {
		fmt.Printf("Channel set to %s\n", *channelChannel)
	} else {
		fmt.Printf("Channel already %s\n", *channelChannel)
	}
}

func join(ctx context.Context, client *apiconnect.AdminClient) {
	resp, err := client.Join(ctx, &apiconnect.JoinRequest{
		Tenant:  *joinTenant,
		Channel: *joinChannel,
		Member:  *joinMember,
		Name:    *joinName,
	})
	if err != nil {
		fail(err)
	}
	fmt.Printf("Joined %s (present: %t)\n", *joinChannel, resp.Present)
}

func status(ctx context.Context, client *apiconnect.AdminClient) {
	st, err := client.GetStatus(ctx, &apiconnect.GetStatusRequest{Tenant: *statusTenant})
	if err != nil {
		fail(err)
	}

	fmt.Println("=== Tenant Status ===")
	fmt.Printf("Tenant: %s\n", st.Tenant)
	fmt.Printf("Channel: %s\n", st.ChannelID)
	fmt.Printf("State: %s\n", st.State)
	fmt.Printf("Volume: %g\n", st.Volume)
	fmt.Printf("Opened: %s\n", st.OpenedAt.Format(time.RFC3339))
	fmt.Printf("Subscribers: %d\n", st.Subscribers)
	if st.Playing != nil {
		fmt.Printf("\nPlaying: %s (%s) %.1f%%\n", st.Playing.Name, st.Playing.SubmitterID, st.Percent)
		if st.Expected > 0 {
			fmt.Printf("Frames: %d/%d\n", st.Played, st.Expected)
		}
	}

	fmt.Printf("\nQueue (%d):\n", len(st.Queue))
	for i, e := range st.Queue {
		mark := ""
		if !e.Present {
			mark = " [absent]"
		}
		fmt.Printf("  %2d. %s - %s%s\n", i+1, e.Name, e.SubmitterID, mark)
	}
	if len(st.Waiting) > 0 {
		fmt.Printf("\nWaiting for: %v\n", st.Waiting)
	}

	submitters := make([]string, 0, len(st.Pending))
	for id := range st.Pending {
		submitters = append(submitters, id)
	}
	sort.Strings(submitters)
	if len(submitters) > 0 {
		fmt.Println("\nPending:")
		for _, id := range submitters {
			fmt.Printf("  %-20s %d\n", id, st.Pending[id])
		}
	}

	fmt.Printf("\nMembers (%d):\n", len(st.Members))
	for _, m := range st.Members {
		fmt.Printf("  %-20s %-20s %-15s requests=%d\n", m.ID, m.Name, m.ChannelID, m.TotalRequests)
	}
}

func listTenants(ctx context.Context, client *apiconnect.AdminClient) {
	resp, err := client.ListTenants(ctx)
	if err != nil {
		fail(err)
	}
	fmt.Printf("%-20s %-15s %-8s %-12s %6s %7s  %s\n", "TENANT", "CHANNEL", "STATE", "PLAYING", "QUEUED", "MEMBERS", "OPENED")
	for _, t := range resp.Tenants {
		fmt.Printf("%-20s %-15s %-8s %-12s %6d %7d  %s\n",
			t.ID, t.ChannelID, t.State, t.Playing, t.Queued, t.Members, t.OpenedAt.Format(time.RFC3339))
	}
}

func listAudit(ctx context.Context, client *apiconnect.AdminClient) {
	resp, err := client.ListAudit(ctx, &apiconnect.ListAuditRequest{Limit: *auditLimit})
	if err != nil {
		fail(err)
	}
	for _, e := range resp.Entries {
		fmt.Printf("%s  %-12s %-16s %-10s %s\n",
			e.Time.Format(time.TimeOnly), e.Tenant, e.UserID, e.State, e.Action)
	}
}
