package relay

// room is the live membership of one collaboration room. Only Hub.Run
// touches it.
type room struct {
	id      string
	members map[*Client]bool
}

func newRoom(id string) *room {
	return &room{id: id, members: make(map[*Client]bool)}
}

func (r *room) empty() bool {
	return len(r.members) == 0
}
