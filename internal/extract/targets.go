package extract

// Per-service extraction targets. These anchors track the observed output
// of each feeder's signup/first-run path; when an upstream image changes
// its wording, only this table moves.

// FR24Targets covers the fr24feed --signup flow. The radar code is issued
// only after the sharing key has been registered server-side, and the
// signup transcript echoes earlier prompts, so radar-id depends on
// sharing-key.
var FR24Targets = []Target{
	{Name: "sharing-key", Anchor: "your sharing key (", Grammar: GrammarHex32},
	{Name: "radar-id", Anchor: "your radar id is", Grammar: GrammarRadarSerial, Requires: "sharing-key"},
}

// PiawareTargets covers the piaware first-run log, which prints
// "my feeder ID is <uuid>" once FlightAware has issued an identity.
var PiawareTargets = []Target{
	{Name: "feeder-id", Anchor: "my feeder id is", Grammar: GrammarUUID},
}

// RadarBoxTargets covers rbfeeder first-run output ("Your new key is
// <hex>. Please save this key").
var RadarBoxTargets = []Target{
	{Name: "sharing-key", Anchor: "your new key is", Grammar: GrammarHex32},
}
