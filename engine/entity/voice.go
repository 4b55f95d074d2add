package entity

// VoiceChannelState is the membership bookkeeping of a voice channel; audio routing happens elsewhere
type VoiceChannelState struct {
	spatial     bool
	maxDistance Coord
	priority    int
	filter      uint32
	players     map[ObjectID]*voiceMember
}

type voiceMember struct {
	player *Object
	muted  bool
}

// Spatial returns if the channel attenuates by distance
func (vc *VoiceChannelState) Spatial() bool { return vc.spatial }

// MaxDistance returns the hearing distance of a spatial channel
func (vc *VoiceChannelState) MaxDistance() Coord { return vc.maxDistance }

// Priority returns the channel priority
func (vc *VoiceChannelState) Priority() int { return vc.priority }

// SetPriority changes the channel priority
func (vc *VoiceChannelState) SetPriority(p int) { vc.priority = p }

// Filter returns the audio filter hash
func (vc *VoiceChannelState) Filter() uint32 { return vc.filter }

// SetFilter changes the audio filter hash
func (vc *VoiceChannelState) SetFilter(f uint32) { vc.filter = f }

// AddPlayer adds a player to the channel
func (vc *VoiceChannelState) AddPlayer(player *Object) bool {
	if !player.IsValid() || player.Kind() != KindPlayer {
		return false
	}
	if _, ok := vc.players[player.ID()]; ok {
		return false
	}
	vc.players[player.ID()] = &voiceMember{player: player}
	return true
}

// RemovePlayer removes a player from the channel
func (vc *VoiceChannelState) RemovePlayer(player *Object) bool {
	if player == nil {
		return false
	}
	if _, ok := vc.players[player.ID()]; !ok {
		return false
	}
	delete(vc.players, player.ID())
	return true
}

// HasPlayer returns if the player is in the channel
func (vc *VoiceChannelState) HasPlayer(player *Object) bool {
	if player == nil {
		return false
	}
	_, ok := vc.players[player.ID()]
	return ok
}

// Mute mutes a member
func (vc *VoiceChannelState) Mute(player *Object) bool {
	return vc.setMuted(player, true)
}

// Unmute unmutes a member
func (vc *VoiceChannelState) Unmute(player *Object) bool {
	return vc.setMuted(player, false)
}

func (vc *VoiceChannelState) setMuted(player *Object, muted bool) bool {
	if player == nil {
		return false
	}
	m, ok := vc.players[player.ID()]
	if !ok {
		return false
	}
	m.muted = muted
	return true
}

// IsMuted returns if the member is muted
func (vc *VoiceChannelState) IsMuted(player *Object) bool {
	if player == nil {
		return false
	}
	m, ok := vc.players[player.ID()]
	return ok && m.muted
}

// Players returns the members ordered by id
func (vc *VoiceChannelState) Players() []*Object {
	ps := PlayerSet{}
	for _, m := range vc.players {
		ps.Add(m.player)
	}
	return ps.Sorted()
}
