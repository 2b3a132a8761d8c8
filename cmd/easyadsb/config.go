package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/easyadsb/easyadsb/internal/artifact"
	"github.com/easyadsb/easyadsb/internal/config"
)

func loadStore() (*config.Store, *config.Snapshot, error) {
	paths, err := installPaths()
	if err != nil {
		return nil, nil, err
	}
	st := config.NewStore(paths)
	snap, err := st.Load()
	if errors.Is(err, config.ErrNotFound) {
		return nil, nil, fmt.Errorf("no configuration found; run 'easyadsb setup' first")
	}
	if err != nil {
		return nil, nil, err
	}
	return st, snap, nil
}

func configShow(cmd *cobra.Command, args []string) error {
	formatter := newOutputFormatter(cmd)
	_, snap, err := loadStore()
	if err != nil {
		return err
	}
	values := snap.Values()
	if formatter.jsonMode {
		return formatter.Print(values)
	}
	out, err := yaml.Marshal(values)
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}

// configSet changes one key, records manual provenance for credential
// keys, and regenerates everything derived. The previous file is backed
// up before the write.
func configSet(cmd *cobra.Command, args []string) error {
	formatter := newOutputFormatter(cmd)
	key, value := args[0], args[1]

	st, snap, err := loadStore()
	if err != nil {
		return err
	}
	rec, err := st.Backup()
	if err != nil {
		return formatter.Error("backup failed, nothing was changed", err)
	}

	snap.Set(key, value)
	for _, spec := range config.CredentialSpecs {
		if spec.Key == key {
			snap.Set(config.SourceKey(key), string(config.ProvenanceManual))
			break
		}
	}
	snap.Set(config.KeyUltrafeederConfig, artifact.BuildUltrafeederConfig(snap))

	if err := st.Save(snap); err != nil {
		return err
	}
	if err := artifact.NewGenerator(st.Paths()).Regenerate(snap); err != nil {
		return err
	}
	return formatter.Print(fmt.Sprintf("%s updated (backup at %s); derived files regenerated.", key, rec.Path))
}

func configRegen(cmd *cobra.Command, args []string) error {
	formatter := newOutputFormatter(cmd)
	st, snap, err := loadStore()
	if err != nil {
		return err
	}
	if err := artifact.NewGenerator(st.Paths()).Regenerate(snap); err != nil {
		return err
	}
	return formatter.Print("Derived files regenerated.")
}
