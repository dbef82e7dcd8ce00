package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/ethpandaops/partcache/pkg/bounds"
	"github.com/ethpandaops/partcache/pkg/catalog"
	"github.com/ethpandaops/partcache/pkg/relinfo"
	"github.com/ethpandaops/partcache/pkg/session"
	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Command flags need to be global for cobra
var (
	inspectPartitions []string
)

// inspectCmd represents the inspect command
//
//nolint:gochecknoglobals // Cobra commands are typically global
var inspectCmd = &cobra.Command{
	Use:   "inspect [relation...]",
	Short: "Build and print partition descriptors",
	Long: `Inspect builds the partition descriptor of every requested relation
(all partitioned relations when none are given) and prints its children
together with their range bounds or hash slots.

Examples:
  # Every partitioned relation of the configured catalog
  partcache inspect

  # One relation by name or identifier
  partcache inspect orders
  partcache inspect 20000

  # Bounds of single partitions, resolved through their parent
  partcache inspect --partition orders_2021 --partition 21001`,
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().StringSliceVar(&inspectPartitions, "partition", nil, "Partition to print the bounds of (name or identifier)")
}

func runInspect(cmd *cobra.Command, args []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// one-shot command, nothing to serve or listen for
	cfg.MetricsAddr = ""
	cfg.Redis.URL = ""

	backend, err := session.OpenBackend(ctx, logger, &cfg.Catalog)
	if err != nil {
		return err
	}

	s, err := session.NewSession(logger, cfg, backend)
	if err != nil {
		backend.Close()

		return err
	}
	defer func() {
		if stopErr := s.Stop(); stopErr != nil {
			logger.WithError(stopErr).Error("Failed to stop session")
		}
	}()

	if len(inspectPartitions) > 0 {
		return inspectBounds(ctx, os.Stdout, s, inspectPartitions)
	}

	relids, err := resolveRelations(ctx, backend, args)
	if err != nil {
		return err
	}

	descriptors := loadDescriptors(ctx, logger, s, relids)
	defer func() {
		for _, d := range descriptors {
			s.Release(d)
		}
	}()

	renderDescriptors(ctx, os.Stdout, backend, descriptors)

	return nil
}

func resolveRelations(ctx context.Context, backend *session.Backend, refs []string) ([]catalog.RelID, error) {
	if len(refs) == 0 {
		return backend.PartitionedRelations(ctx)
	}

	out := make([]catalog.RelID, 0, len(refs))

	for _, ref := range refs {
		relid, err := backend.ResolveRelation(ctx, ref)
		if err != nil {
			return nil, err
		}

		out = append(out, relid)
	}

	return out, nil
}

// loadDescriptors returns pinned descriptors; relations that fail to build are logged and skipped
func loadDescriptors(ctx context.Context, log logrus.FieldLogger, s *session.Session, relids []catalog.RelID) []*relinfo.Descriptor {
	out := make([]*relinfo.Descriptor, 0, len(relids))

	for _, relid := range relids {
		d, err := s.Load(ctx, relid)
		if err != nil {
			log.WithError(err).WithField("relid", relid).Warn("Failed to build partition descriptor")

			continue
		}

		if d == nil {
			log.WithField("relid", relid).Warn("Relation is not partitioned")

			continue
		}

		out = append(out, d)
	}

	return out
}

func renderDescriptors(ctx context.Context, w io.Writer, backend *session.Backend, descriptors []*relinfo.Descriptor) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Relation", "Type", "Expression", "Partition", "Min", "Max", "Slot"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, d := range descriptors {
		name := backend.RelationName(ctx, d.RelID())
		typ := d.TypeInfo().OID

		if d.PartType() == catalog.PartTypeRange {
			for _, r := range d.Ranges() {
				table.Append([]string{
					name,
					d.PartType().String(),
					d.ExprText(),
					backend.RelationName(ctx, r.Child),
					backend.Types.FormatBound(typ, r.Min),
					backend.Types.FormatBound(typ, r.Max),
					"",
				})
			}

			continue
		}

		for slot, child := range d.Children() {
			table.Append([]string{
				name,
				d.PartType().String(),
				d.ExprText(),
				backend.RelationName(ctx, child),
				"",
				"",
				strconv.Itoa(slot),
			})
		}
	}

	table.Render()
}

func inspectBounds(ctx context.Context, w io.Writer, s *session.Session, refs []string) error {
	backend := s.Backend()

	entries := make([]bounds.Entry, 0, len(refs))

	for _, ref := range refs {
		child, err := backend.ResolveRelation(ctx, ref)
		if err != nil {
			return err
		}

		entry, err := s.BoundsOf(ctx, child)
		if err != nil {
			return fmt.Errorf("failed to read bounds of %s: %w", ref, err)
		}

		entries = append(entries, entry)
	}

	renderBounds(ctx, w, s, entries)

	return nil
}

func renderBounds(ctx context.Context, w io.Writer, s *session.Session, entries []bounds.Entry) {
	backend := s.Backend()

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Partition", "Parent", "Type", "Min", "Max", "Slot", "Generation"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, e := range entries {
		row := []string{
			backend.RelationName(ctx, e.Child),
			backend.RelationName(ctx, e.Parent),
			e.PartType.String(),
			"",
			"",
			"",
			strconv.FormatUint(e.Generation, 10),
		}

		if e.PartType == catalog.PartTypeRange {
			typ := boundsType(s, e.Parent)
			row[3] = backend.Types.FormatBound(typ, e.Min)
			row[4] = backend.Types.FormatBound(typ, e.Max)
		} else {
			row[5] = strconv.FormatUint(uint64(e.HashSlot), 10)
		}

		table.Append(row)
	}

	table.Render()
}

// boundsType returns the value type of parent's partitioning expression when its descriptor is cached
func boundsType(s *session.Session, parent catalog.RelID) catalog.TypeOID {
	d, ok := s.Descriptor(parent)
	if !ok {
		return 0
	}
	defer s.Release(d)

	return d.TypeInfo().OID
}
