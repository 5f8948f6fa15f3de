// Package route53 implements a DNS provider backed by AWS Route53.
package route53

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	r53 "github.com/aws/aws-sdk-go-v2/service/route53"
	r53types "github.com/aws/aws-sdk-go-v2/service/route53/types"
	"github.com/aws/smithy-go"
	"github.com/miekg/dns"

	"github.com/bkero/dynr53/pkg/endpoint"
	"github.com/bkero/dynr53/pkg/provider"
)

// route53API is the subset of the Route53 client used by Provider.
// Defined as an interface so tests can inject a mock.
type route53API interface {
	ListHostedZonesByName(ctx context.Context, in *r53.ListHostedZonesByNameInput, opts ...func(*r53.Options)) (*r53.ListHostedZonesByNameOutput, error)
	ListResourceRecordSets(ctx context.Context, in *r53.ListResourceRecordSetsInput, opts ...func(*r53.Options)) (*r53.ListResourceRecordSetsOutput, error)
	ChangeResourceRecordSets(ctx context.Context, in *r53.ChangeResourceRecordSetsInput, opts ...func(*r53.Options)) (*r53.ChangeResourceRecordSetsOutput, error)
}

// maxItemsPerPage bounds each Route53 listing page.
const maxItemsPerPage = int32(100)

// zoneIDPrefix is the path prefix Route53 prepends to hosted zone IDs.
const zoneIDPrefix = "/hostedzone/"

// Provider implements provider.Provider against the Route53 API.
type Provider struct {
	client route53API
	log    *slog.Logger
}

// New returns a Provider using the given Route53 client. The client is
// constructed once at startup and reused for the process lifetime.
func New(client *r53.Client, log *slog.Logger) *Provider {
	return newWithAPI(client, log)
}

// newWithAPI constructs a Provider with an injected API for unit testing.
func newWithAPI(client route53API, log *slog.Logger) *Provider {
	if log == nil {
		log = slog.Default()
	}
	return &Provider{client: client, log: log}
}

// Zones lists hosted zones whose names sort at or after nameHint, paginating
// until the listing moves past the hint. Exact matching is left to the caller.
func (p *Provider) Zones(ctx context.Context, nameHint string) ([]provider.Zone, error) {
	hint := dns.Fqdn(nameHint)

	var zones []provider.Zone
	in := &r53.ListHostedZonesByNameInput{
		DNSName:  aws.String(nameHint),
		MaxItems: aws.Int32(maxItemsPerPage),
	}
	for {
		out, err := p.client.ListHostedZonesByName(ctx, in)
		if err != nil {
			return nil, classify(fmt.Errorf("listing hosted zones by name %q: %w", nameHint, err))
		}

		past := false
		for _, hz := range out.HostedZones {
			name := aws.ToString(hz.Name)
			zones = append(zones, provider.Zone{
				Name: name,
				ID:   strings.TrimPrefix(aws.ToString(hz.Id), zoneIDPrefix),
			})
			if dns.CanonicalName(name) != dns.CanonicalName(hint) {
				// The ordered listing has moved past the hint; further
				// pages cannot contain an exact match.
				past = true
			}
		}
		if !out.IsTruncated || past {
			break
		}
		in.DNSName = out.NextDNSName
		in.HostedZoneId = out.NextHostedZoneId
	}

	p.log.Debug("listed hosted zones", "hint", nameHint, "count", len(zones))
	return zones, nil
}

// Records returns the A record sets named exactly name within the zone.
func (p *Provider) Records(ctx context.Context, zoneID, name string) ([]*endpoint.RecordSet, error) {
	fqdn := dns.Fqdn(name)

	var sets []*endpoint.RecordSet
	in := &r53.ListResourceRecordSetsInput{
		HostedZoneId:    aws.String(zoneID),
		StartRecordName: aws.String(fqdn),
		StartRecordType: r53types.RRTypeA,
		MaxItems:        aws.Int32(maxItemsPerPage),
	}
	for {
		out, err := p.client.ListResourceRecordSets(ctx, in)
		if err != nil {
			return nil, classify(fmt.Errorf("listing record sets for %q in zone %s: %w", name, zoneID, err))
		}

		past := false
		for _, rrs := range out.ResourceRecordSets {
			if !endpoint.NamesEqual(aws.ToString(rrs.Name), fqdn) {
				// Ordered listing: once the name no longer matches there is
				// nothing further to collect.
				past = true
				break
			}
			if rrs.Type != r53types.RRTypeA {
				continue
			}
			values := make([]string, 0, len(rrs.ResourceRecords))
			for _, rr := range rrs.ResourceRecords {
				values = append(values, aws.ToString(rr.Value))
			}
			sets = append(sets, &endpoint.RecordSet{
				Name:   aws.ToString(rrs.Name),
				Type:   string(rrs.Type),
				TTL:    aws.ToInt64(rrs.TTL),
				Values: values,
			})
		}
		if !out.IsTruncated || past {
			break
		}
		in.StartRecordName = out.NextRecordName
		in.StartRecordType = out.NextRecordType
		in.StartRecordIdentifier = out.NextRecordIdentifier
	}

	return sets, nil
}

// UpsertRecordSet issues a single UPSERT change for the record set.
func (p *Provider) UpsertRecordSet(ctx context.Context, zoneID string, rs *endpoint.RecordSet) error {
	records := make([]r53types.ResourceRecord, 0, len(rs.Values))
	for _, v := range rs.Values {
		records = append(records, r53types.ResourceRecord{Value: aws.String(v)})
	}

	p.log.Info("upserting record set", "name", rs.Name, "type", rs.Type, "ttl", rs.TTL, "zone", zoneID)

	_, err := p.client.ChangeResourceRecordSets(ctx, &r53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(zoneID),
		ChangeBatch: &r53types.ChangeBatch{
			Changes: []r53types.Change{
				{
					Action: r53types.ChangeActionUpsert,
					ResourceRecordSet: &r53types.ResourceRecordSet{
						Name:            aws.String(rs.Name),
						Type:            r53types.RRType(rs.Type),
						TTL:             aws.Int64(rs.TTL),
						ResourceRecords: records,
					},
				},
			},
		},
	})
	if err != nil {
		return classify(fmt.Errorf("upserting %s in zone %s: %w", rs.Name, zoneID, err))
	}
	return nil
}

// classify maps AWS authorization failures onto provider.ErrUnauthorized so
// callers can distinguish a policy-scope rejection from a missing zone or a
// transient backend failure.
func classify(err error) error {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "AccessDenied", "AccessDeniedException", "UnauthorizedOperation", "NotAuthorizedException":
			return fmt.Errorf("%w: %s", provider.ErrUnauthorized, err)
		}
	}
	return err
}
