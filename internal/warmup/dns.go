package warmup

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"MailRamp/internal/models"
)

// DNSResult lists which sending records a domain publishes.
type DNSResult struct {
	MX    bool `json:"mx"`
	SPF   bool `json:"spf"`
	DKIM  bool `json:"dkim"`
	DMARC bool `json:"dmarc"`
}

// OK needs MX plus at least one of SPF, DKIM or DMARC.
func (r DNSResult) OK() bool {
	return r.MX && (r.SPF || r.DKIM || r.DMARC)
}

type DNSChecker interface {
	Check(ctx context.Context, domain string) (DNSResult, error)
}

// Resolver is the subset of *net.Resolver used by NetDNS.
type Resolver interface {
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

type NetDNS struct {
	Resolver  Resolver
	Timeout   time.Duration
	Selectors []string
}

func NewNetDNS(timeout time.Duration) *NetDNS {
	return &NetDNS{
		Resolver:  net.DefaultResolver,
		Timeout:   timeout,
		Selectors: []string{"default", "google", "selector1", "selector2"},
	}
}

// Check treats a failed lookup as a missing record.
func (d *NetDNS) Check(ctx context.Context, domain string) (DNSResult, error) {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	var res DNSResult

	if mx, err := d.Resolver.LookupMX(ctx, domain); err == nil && len(mx) > 0 {
		res.MX = true
	}

	scan := func(name string) {
		txt, err := d.Resolver.LookupTXT(ctx, name)
		if err != nil {
			return
		}
		for _, rec := range txt {
			v := strings.ToLower(rec)
			switch {
			case strings.Contains(v, "v=spf1"):
				res.SPF = true
			case strings.Contains(v, "v=dmarc1"):
				res.DMARC = true
			case strings.Contains(v, "v=dkim1"), strings.Contains(v, "k=rsa"):
				res.DKIM = true
			}
		}
	}

	scan(domain)
	if !res.DMARC {
		scan("_dmarc." + domain)
	}
	for _, sel := range d.Selectors {
		if res.DKIM {
			break
		}
		scan(sel + "._domainkey." + domain)
	}

	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("dns check %s: %w", domain, err)
	}
	return res, nil
}

func domainOf(address string) string {
	at := strings.LastIndex(address, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(address[at+1:])
}

// CheckDNSSetup looks up the mailbox domain. A passing inactive or
// dns_pending mailbox becomes ready_to_warmup; a failing inactive one
// becomes dns_pending.
func (m *Machine) CheckDNSSetup(ctx context.Context, mailboxID int64) (DNSResult, error) {
	if m.DNS == nil {
		return DNSResult{}, fmt.Errorf("no dns checker configured")
	}

	mb, err := m.store.GetMailbox(ctx, mailboxID)
	if err != nil {
		return DNSResult{}, fmt.Errorf("load mailbox %d: %w", mailboxID, err)
	}

	domain := domainOf(mb.Email)
	if domain == "" {
		return DNSResult{}, fmt.Errorf("mailbox %d has no domain", mailboxID)
	}

	res, err := m.DNS.Check(ctx, domain)
	if err != nil {
		return res, err
	}

	m.log.Info("dns checked",
		zap.Int64("mailbox_id", mb.ID),
		zap.String("domain", domain),
		zap.Bool("mx", res.MX),
		zap.Bool("spf", res.SPF),
		zap.Bool("dkim", res.DKIM),
		zap.Bool("dmarc", res.DMARC),
	)

	from := []models.WarmupStatus{models.WarmupInactive, models.WarmupDNSPending}
	if !allowed(mb.WarmupStatus, from) {
		return res, nil
	}

	u := mb.WarmupState()
	switch {
	case res.OK():
		u.Status = models.WarmupReadyToWarmup
	case mb.WarmupStatus == models.WarmupInactive:
		u.Status = models.WarmupDNSPending
	default:
		return res, nil
	}
	return res, m.transition(ctx, mb, from, u)
}

// CheckPendingDNS re-checks every dns_pending mailbox.
func (m *Machine) CheckPendingDNS(ctx context.Context) (int, error) {
	if m.DNS == nil {
		return 0, nil
	}

	list, err := m.store.ListMailboxesByWarmupStatus(ctx, models.WarmupDNSPending)
	if err != nil {
		return 0, fmt.Errorf("list dns pending mailboxes: %w", err)
	}

	passed := 0
	for _, mb := range list {
		res, err := m.CheckDNSSetup(ctx, mb.ID)
		if err != nil {
			m.log.Warn("dns check failed", zap.Int64("mailbox_id", mb.ID), zap.Error(err))
			continue
		}
		if res.OK() {
			passed++
		}
	}
	return passed, nil
}
