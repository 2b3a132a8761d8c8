package console

import (
	"fmt"
	"io"
	"strconv"

	"github.com/easyadsb/easyadsb/internal/artifact"
	"github.com/easyadsb/easyadsb/internal/config"
	"github.com/easyadsb/easyadsb/internal/discovery"
	"github.com/easyadsb/easyadsb/internal/extract"
)

// probeSpec describes the signup run for one feeder service. The feeder
// binaries insist on a TTY, so every probe goes through a pseudo-terminal.
func probeSpec(svc config.Service, profile config.FeederProfile, sink io.Writer) discovery.ServiceSpec {
	env := []string{
		fmt.Sprintf("FEEDER_LAT=%s", strconv.FormatFloat(profile.Latitude, 'f', -1, 64)),
		fmt.Sprintf("FEEDER_LONG=%s", strconv.FormatFloat(profile.Longitude, 'f', -1, 64)),
		fmt.Sprintf("FEEDER_ALT_M=%s", strconv.FormatFloat(profile.AltitudeM, 'f', -1, 64)),
		fmt.Sprintf("FEEDER_TZ=%s", profile.Timezone),
	}
	spec := discovery.ServiceSpec{
		Service: svc.ID,
		Command: "docker",
		LogSink: sink,
	}
	switch svc.ID {
	case config.ServiceFR24.ID:
		spec.Args = dockerRunArgs(artifact.ImageFR24, env, "fr24feed", "--signup")
		spec.Targets = extract.FR24Targets
	case config.ServicePiaware.ID:
		spec.Args = dockerRunArgs(artifact.ImagePiaware, env)
		spec.Targets = extract.PiawareTargets
	case config.ServiceRadarBox.ID:
		spec.Args = dockerRunArgs(artifact.ImageRadarBox, env)
		spec.Targets = extract.RadarBoxTargets
	}
	return spec
}

func dockerRunArgs(image string, env []string, extra ...string) []string {
	args := []string{"run", "--rm", "-t"}
	for _, e := range env {
		args = append(args, "-e", e)
	}
	args = append(args, image)
	args = append(args, extra...)
	return args
}
