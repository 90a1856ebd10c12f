package prefs

// CurrentVersion is the configuration format version this build writes and
// reads natively. Older configs are upgraded through the migration chain
// before use.
const CurrentVersion = 6

// migration upgrades a tree from one version to the next, adding whatever
// paths that version introduced. Each step is deliberately small so that a
// config frozen at any historical version can still be brought forward.
type migration func(*Node)

var migrations = map[int]migration{
	0: func(n *Node) {
		n.Set("video.overscan", "AUTO")
	},
	1: func(n *Node) {
		n.Set("audio.rate", "48000")
	},
	2: func(n *Node) {
		n.Set("input.deadzone", "8192")
	},
	3: func(n *Node) {
		n.Set("debugger.gdb.port", "2345")
	},
	4: func(n *Node) {
		n.Set("eventlog.enabled", "false")
	},
	5: func(n *Node) {
		n.Set("segacd.ramcart.size", "0")
	},
}

// Migrate upgrades n in place from whatever version it declares up to
// CurrentVersion, applying each intermediate migration step in order.
func Migrate(n *Node) {
	version := n.Int("version", 0)
	for version < CurrentVersion {
		if step, ok := migrations[version]; ok {
			step(n)
		}
		version++
	}
	n.Set("version", itoa(CurrentVersion))
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
