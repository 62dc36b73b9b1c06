package globalrib

import "sort"

// RIB is the global ordered RIB: one ascending-by-Compare route list per
// prefix (index 0 is the primary/best route, index 1 the backup used for
// virtual MAC encoding), plus a per-peer index so a peer's withdrawal can
// find its own previously announced route without a linear scan. It is
// owned by exactly one goroutine (the server loop) and is not safe for
// concurrent use.
type RIB struct {
	byPrefix map[string][]*Route
	byPeer   map[string]map[string]*Route
}

// New returns an empty RIB.
func New() *RIB {
	return &RIB{
		byPrefix: make(map[string][]*Route),
		byPeer:   make(map[string]map[string]*Route),
	}
}

func insertSorted(routes []*Route, r *Route) []*Route {
	i := sort.Search(len(routes), func(i int) bool { return Compare(routes[i], r) >= 0 })
	routes = append(routes, nil)
	copy(routes[i+1:], routes[i:])
	routes[i] = r
	return routes
}

// removeExact deletes the specific *Route pointer target from routes
// (routes may hold several entries with Compare==0 that are still
// distinct objects; identity, not ordering, decides which one to drop).
func removeExact(routes []*Route, target *Route) []*Route {
	lo := sort.Search(len(routes), func(i int) bool { return Compare(routes[i], target) >= 0 })
	for i := lo; i < len(routes) && Compare(routes[i], target) == 0; i++ {
		if routes[i] == target {
			return append(routes[:i], routes[i+1:]...)
		}
	}
	for i, r := range routes {
		if r == target {
			return append(routes[:i], routes[i+1:]...)
		}
	}
	return routes
}

func at(routes []*Route, i int) *Route {
	if i < 0 || i >= len(routes) {
		return nil
	}
	return routes[i]
}

// Announce inserts or replaces route's peer's entry for its prefix and
// returns the best and second-best (backup) routes before and after, plus
// the peer's own previous route for that prefix (nil on a peer's first
// announcement of it).
func (r *RIB) Announce(route *Route) (prevBest, newBest, prevPeerRoute, prevBackup, newBackup *Route) {
	routes := r.byPrefix[route.Prefix]
	prevBest = at(routes, 0)
	prevBackup = at(routes, 1)

	peerRoutes, ok := r.byPeer[route.PeerIP]
	if !ok {
		peerRoutes = make(map[string]*Route)
		r.byPeer[route.PeerIP] = peerRoutes
	}
	if existing, had := peerRoutes[route.Prefix]; had {
		prevPeerRoute = existing
		routes = removeExact(routes, existing)
	}

	routes = insertSorted(routes, route)
	r.byPrefix[route.Prefix] = routes
	peerRoutes[route.Prefix] = route

	newBest = at(routes, 0)
	newBackup = at(routes, 1)
	return prevBest, newBest, prevPeerRoute, prevBackup, newBackup
}

// Withdraw removes peerIP's route for prefix, returning the best route
// before and after, the withdrawn route itself (nil if the peer had none),
// and the backup before/after. All returns are nil if the peer had no
// route for prefix.
func (r *RIB) Withdraw(peerIP, prefix string) (prevBest, newBest, withdrawn, prevBackup, newBackup *Route) {
	peerRoutes, ok := r.byPeer[peerIP]
	if !ok {
		return nil, nil, nil, nil, nil
	}
	withdrawn, ok = peerRoutes[prefix]
	if !ok {
		return nil, nil, nil, nil, nil
	}

	routes := r.byPrefix[prefix]
	prevBackup = at(routes, 1)
	prevBest = at(routes, 0)

	routes = removeExact(routes, withdrawn)
	if len(routes) == 0 {
		delete(r.byPrefix, prefix)
	} else {
		r.byPrefix[prefix] = routes
	}

	delete(peerRoutes, prefix)
	if len(peerRoutes) == 0 {
		delete(r.byPeer, peerIP)
	}

	newBest = at(routes, 0)
	newBackup = at(routes, 1)
	return prevBest, newBest, withdrawn, prevBackup, newBackup
}

// GetBackupAvoidingASLink returns the first route for prefix whose peer
// differs from peerIP and whose AS path contains neither (from,to) nor
// (to,from) as a consecutive pair; falls back to the first
// different-peer route if every alternate contains the link, or nil if
// peerIP is the only route. If traditional is true, link-avoidance is
// skipped entirely and the first different-peer route is returned
// unconditionally, matching the pre-encoding fallback behavior.
func (r *RIB) GetBackupAvoidingASLink(peerIP, prefix string, link ASLink, traditional bool) *Route {
	var fallback *Route
	for _, route := range r.byPrefix[prefix] {
		if route.PeerIP == peerIP {
			continue
		}
		if fallback == nil {
			fallback = route
			if traditional {
				break
			}
		}
		if !hasASLink(route.ASPath, link) {
			return route
		}
	}
	return fallback
}

// BackupAvailable reports whether peerIP currently has an advertised
// route for prefix.
func (r *RIB) BackupAvailable(prefix, peerIP string) bool {
	for _, route := range r.byPrefix[prefix] {
		if route.PeerIP == peerIP {
			return true
		}
	}
	return false
}

// Best returns the current best (primary) route for prefix, or nil.
func (r *RIB) Best(prefix string) *Route {
	return at(r.byPrefix[prefix], 0)
}

// Len returns the number of distinct prefixes currently held.
func (r *RIB) Len() int { return len(r.byPrefix) }
