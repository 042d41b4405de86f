package game

import (
	"sync"
	"time"

	"github.com/blockfall/blockfall-server-go/internal/catalog"
	"go.uber.org/zap"
)

// Input is one client control action. AI inputs use this same
// vocabulary and pass through the same debuff machinery.
type Input string

const (
	InputMoveLeft  Input = "move_left"
	InputMoveRight Input = "move_right"
	InputRotate    Input = "rotate"
	InputSoftDrop  Input = "soft_drop"
	InputHardDrop  Input = "hard_drop"
)

// ParseInput validates a wire input string.
func ParseInput(s string) (Input, bool) {
	switch Input(s) {
	case InputMoveLeft, InputMoveRight, InputRotate, InputSoftDrop, InputHardDrop:
		return Input(s), true
	default:
		return "", false
	}
}

const (
	defaultWidth        = 10
	defaultHeight       = 20
	defaultQueueSize    = 5
	defaultStarCapacity = 100
	defaultBlackholeCap = 2 * time.Minute
	defaultGoldBonus    = 5

	starsPerLine = 10
	comboWindow  = 6 * time.Second

	// gravity interval by level, floor at fastestGravity
	baseGravity    = 800 * time.Millisecond
	gravityPerLvl  = 70 * time.Millisecond
	fastestGravity = 120 * time.Millisecond

	// rotation kick offsets, tried in order
	rotationKicks = 5
)

var kickOffsets = [rotationKicks]int{0, -1, 1, -2, 2}

// Config sets up one simulation engine.
type Config struct {
	PlayerID     string
	RoomSeed     int64
	Width        int
	Height       int
	QueueSize    int
	StarCapacity int
	BlackholeCap time.Duration
	Catalog      *catalog.Catalog
}

func (c Config) withDefaults() Config {
	if c.Width <= 0 {
		c.Width = defaultWidth
	}
	if c.Height <= 0 {
		c.Height = defaultHeight
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.StarCapacity <= 0 {
		c.StarCapacity = defaultStarCapacity
	}
	if c.BlackholeCap <= 0 {
		c.BlackholeCap = defaultBlackholeCap
	}
	if c.Catalog == nil {
		c.Catalog = catalog.Default()
	}
	return c
}

// ApplyResult reports what ApplyAbility did.
type ApplyResult struct {
	Applied       bool
	Deflected     bool
	CellsAffected int
}

// Engine is the authoritative simulation of one player's board. All
// methods take the current time explicitly so rooms and tests drive it
// from their own clock.
type Engine struct {
	logger   *zap.Logger
	cfg      Config
	handlers map[catalog.AbilityID]abilityHandler

	mu      sync.Mutex
	board   *Board
	current *Piece
	next    []PieceType
	gen     *PieceGenerator
	fx      *Stream

	score       int
	stars       int
	lines       int
	combo       int
	level       int
	lastClearAt time.Time
	haveCleared bool
	gameOver    bool

	timed           map[catalog.AbilityID]timedEffect
	pieceFx         []pieceCountEffect
	bomb            *pendingBomb
	blackholeActive bool
	blackholeSince  time.Time
	deflectArmed    bool
	goldBonus       int

	onLinesCleared func(cleared int, now time.Time)
	onGameOver     func(now time.Time)
}

// NewEngine creates an engine with its piece queue prefilled. The
// piece stream is seeded from (room seed, player id); ability
// randomness uses a separate stream so board mutators never perturb
// the piece sequence.
func NewEngine(cfg Config, logger *zap.Logger) *Engine {
	cfg = cfg.withDefaults()

	handlers, err := buildHandlers(cfg.Catalog)
	if err != nil {
		// Custom catalogs are verified at load; reaching this point
		// means the caller skipped VerifyCatalog.
		panic(err)
	}

	e := &Engine{
		logger:    logger,
		cfg:       cfg,
		handlers:  handlers,
		board:     NewBoard(cfg.Width, cfg.Height),
		gen:       NewPieceGenerator(SeedFor(cfg.RoomSeed, cfg.PlayerID)),
		fx:        NewStream(SeedFor(cfg.RoomSeed, cfg.PlayerID+"/effects")),
		timed:     make(map[catalog.AbilityID]timedEffect),
		goldBonus: defaultGoldBonus,
	}
	e.next = make([]PieceType, 0, cfg.QueueSize)
	for i := 0; i < cfg.QueueSize; i++ {
		e.next = append(e.next, e.gen.Next())
	}
	return e
}

// SetLinesClearedHook registers the callback fired after locks that
// clear rows. Hooks run outside the engine mutex.
func (e *Engine) SetLinesClearedHook(fn func(cleared int, now time.Time)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onLinesCleared = fn
}

// SetGameOverHook registers the callback fired when the board tops out.
func (e *Engine) SetGameOverHook(fn func(now time.Time)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onGameOver = fn
}

// PlayerID returns the owning player id.
func (e *Engine) PlayerID() string {
	return e.cfg.PlayerID
}

// BoardSize returns the board dimensions after defaulting.
func (e *Engine) BoardSize() (width, height int) {
	return e.cfg.Width, e.cfg.Height
}

// ProcessInput applies one control action. Returns whether visible
// state changed. Inputs are ignored once the game is over or while a
// blackhole suspends the board. reverse_controls swaps horizontal
// moves and rotation_lock turns rotations into no-ops, for AI and
// human input alike.
func (e *Engine) ProcessInput(in Input, now time.Time) bool {
	e.mu.Lock()
	changed, fires := e.processInputLocked(in, now)
	e.mu.Unlock()
	for _, f := range fires {
		f()
	}
	return changed
}

func (e *Engine) processInputLocked(in Input, now time.Time) (bool, []func()) {
	if e.gameOver {
		return false, nil
	}
	e.pruneExpiredLocked(now)
	if e.blackholeActive || e.current == nil {
		return false, nil
	}

	if e.hasTimedLocked(catalog.AbilityReverseControls) {
		switch in {
		case InputMoveLeft:
			in = InputMoveRight
		case InputMoveRight:
			in = InputMoveLeft
		}
	}

	switch in {
	case InputMoveLeft:
		if e.board.Fits(e.current.Shape, e.current.X-1, e.current.Y) {
			e.current.X--
			return true, nil
		}
	case InputMoveRight:
		if e.board.Fits(e.current.Shape, e.current.X+1, e.current.Y) {
			e.current.X++
			return true, nil
		}
	case InputRotate:
		if e.hasTimedLocked(catalog.AbilityRotationLock) {
			return false, nil
		}
		rotated := e.current.RotatedShape()
		for _, kick := range kickOffsets {
			if e.board.Fits(rotated, e.current.X+kick, e.current.Y) {
				e.current.Shape = rotated
				e.current.X += kick
				return true, nil
			}
		}
	case InputSoftDrop:
		if e.board.Fits(e.current.Shape, e.current.X, e.current.Y+1) {
			e.current.Y++
			e.score++
			return true, nil
		}
		fires := e.lockPipelineLocked(now)
		return true, fires
	case InputHardDrop:
		dropped := 0
		for e.board.Fits(e.current.Shape, e.current.X, e.current.Y+1) {
			e.current.Y++
			dropped++
		}
		e.score += 2 * dropped
		fires := e.lockPipelineLocked(now)
		return true, fires
	}
	return false, nil
}

// Tick advances gravity one step: the piece falls a row, locks when it
// cannot, and a new piece spawns when none is falling. Returns whether
// state changed.
func (e *Engine) Tick(now time.Time) bool {
	e.mu.Lock()
	changed, fires := e.tickLocked(now)
	e.mu.Unlock()
	for _, f := range fires {
		f()
	}
	return changed
}

func (e *Engine) tickLocked(now time.Time) (bool, []func()) {
	if e.gameOver {
		return false, nil
	}
	e.pruneExpiredLocked(now)
	// A pending blackhole halts gravity and the lock pipeline outright;
	// only the safety cap or an explicit resolve lifts the freeze.
	if e.blackholeActive {
		return false, nil
	}

	if e.current == nil {
		fires := e.spawnLocked(now)
		return true, fires
	}
	if e.board.Fits(e.current.Shape, e.current.X, e.current.Y+1) {
		e.current.Y++
		return true, nil
	}
	fires := e.lockPipelineLocked(now)
	return true, fires
}

// lockPipelineLocked stamps the current piece, detonates any armed
// bomb, clears rows, settles the economy, and spawns the next piece.
func (e *Engine) lockPipelineLocked(now time.Time) []func() {
	piece := e.current
	e.board.Lock(piece)
	e.current = nil

	if e.bomb != nil {
		e.detonateLocked(piece)
	}

	var fires []func()
	rows, gold := e.board.ClearFullRows()
	if rows > 0 {
		if e.haveCleared && now.Sub(e.lastClearAt) <= comboWindow {
			e.combo++
		} else {
			e.combo = 1
		}
		e.lastClearAt = now
		e.haveCleared = true

		e.lines += rows
		e.level = e.lines / 10
		e.score += lineScore(rows) * (e.level + 1)

		award := rows*starsPerLine + gold*e.goldBonus
		if e.combo > 1 {
			award += 2 * (e.combo - 1)
		}
		if e.hasTimedLocked(catalog.AbilityCascadeMultiplier) {
			award *= 2
		}
		e.addStarsLocked(award)

		if e.onLinesCleared != nil {
			hook := e.onLinesCleared
			cleared := rows
			fires = append(fires, func() { hook(cleared, now) })
		}

		if e.logger != nil {
			e.logger.Debug("rows cleared",
				zap.String("player_id", e.cfg.PlayerID),
				zap.Int("rows", rows),
				zap.Int("combo", e.combo),
				zap.Int("stars", e.stars),
			)
		}
	}

	fires = append(fires, e.spawnLocked(now)...)
	return fires
}

// detonateLocked fires the armed bomb centered on the locked piece.
func (e *Engine) detonateLocked(piece *Piece) {
	ability, ok := e.cfg.Catalog.Get(e.bomb.id)
	e.bomb = nil
	if !ok {
		return
	}

	cx := piece.X + piece.Width()/2
	cy := piece.Y + piece.Height()/2
	switch ability.ID {
	case catalog.AbilityCircleBomb:
		e.board.DetonateCircle(cx, cy, ability.Param("radius", 2))
	case catalog.AbilityCrossFirebomb:
		e.board.DetonateCross(cx, cy, ability.Param("arm", 3))
	}
}

// spawnLocked brings in the next piece. Piece-count overrides take
// precedence without consuming the queue, so the shared deterministic
// stream stays aligned across engines.
func (e *Engine) spawnLocked(now time.Time) []func() {
	var t PieceType
	if len(e.pieceFx) > 0 {
		head := &e.pieceFx[0]
		t = head.pieceType
		head.remaining--
		if head.remaining <= 0 {
			e.pieceFx = e.pieceFx[1:]
		}
	} else {
		t = e.next[0]
		e.next = append(e.next[1:], e.gen.Next())
	}

	p := NewPiece(t, e.fx)
	p.X = (e.cfg.Width - p.Width()) / 2
	p.Y = 0
	if e.hasTimedLocked(catalog.AbilityShrinkCeiling) {
		if a, ok := e.cfg.Catalog.Get(catalog.AbilityShrinkCeiling); ok {
			p.Y += a.Param("rows", 2)
		}
	}

	if !e.board.Fits(p.Shape, p.X, p.Y) {
		e.gameOver = true
		if e.logger != nil {
			e.logger.Info("board topped out",
				zap.String("player_id", e.cfg.PlayerID),
				zap.Int("lines", e.lines),
				zap.Int("score", e.score),
			)
		}
		if e.onGameOver != nil {
			hook := e.onGameOver
			return []func(){func() { hook(now) }}
		}
		return nil
	}
	e.current = p
	return nil
}

// ApplyAbility resolves an engine-applicable ability against this
// board. An armed deflect shield eats the next debuff instead.
func (e *Engine) ApplyAbility(id catalog.AbilityID, now time.Time) ApplyResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.gameOver {
		return ApplyResult{}
	}
	e.pruneExpiredLocked(now)

	ability, ok := e.cfg.Catalog.Get(id)
	if !ok {
		if e.logger != nil {
			e.logger.Warn("ability not in catalog", zap.String("ability", string(id)))
		}
		return ApplyResult{}
	}

	if ability.Category == catalog.CategoryDebuff && e.deflectArmed {
		e.deflectArmed = false
		if e.logger != nil {
			e.logger.Info("debuff deflected",
				zap.String("player_id", e.cfg.PlayerID),
				zap.String("ability", string(id)),
			)
		}
		return ApplyResult{Deflected: true}
	}

	handler, ok := e.handlers[id]
	if !ok {
		if e.logger != nil {
			e.logger.Warn("ability has no engine handler", zap.String("ability", string(id)))
		}
		return ApplyResult{}
	}

	cells := handler(e, ability, now)
	return ApplyResult{Applied: true, CellsAffected: cells}
}

// ResolveBlackhole lifts a blackhole suspension. Returns whether one
// was active.
func (e *Engine) ResolveBlackhole(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.blackholeActive {
		return false
	}
	e.blackholeActive = false
	if e.logger != nil {
		e.logger.Info("blackhole resolved",
			zap.String("player_id", e.cfg.PlayerID),
			zap.Duration("suspended_for", now.Sub(e.blackholeSince)),
		)
	}
	return true
}

// ActiveEffects returns the ids of everything currently affecting this
// engine: unexpired timed effects, pending piece overrides, an armed
// bomb or deflect shield, and an active blackhole. Sorted for stable
// output.
func (e *Engine) ActiveEffects(now time.Time) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pruneExpiredLocked(now)
	return e.activeEffectsLocked()
}

// HasEffect reports whether the given effect is currently active.
func (e *Engine) HasEffect(id catalog.AbilityID, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pruneExpiredLocked(now)

	if e.hasTimedLocked(id) {
		return true
	}
	if e.bomb != nil && e.bomb.id == id {
		return true
	}
	for _, fx := range e.pieceFx {
		if fx.id == id {
			return true
		}
	}
	if id == catalog.AbilityBlackhole && e.blackholeActive {
		return true
	}
	if id == catalog.AbilityDeflectShield && e.deflectArmed {
		return true
	}
	return false
}

// EffectiveTickRate returns the current gravity interval: faster at
// higher levels, halved while speed_up_opponent is active.
func (e *Engine) EffectiveTickRate(now time.Time) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pruneExpiredLocked(now)
	return e.tickRateLocked()
}

func (e *Engine) tickRateLocked() time.Duration {
	rate := baseGravity - time.Duration(e.level)*gravityPerLvl
	if rate < fastestGravity {
		rate = fastestGravity
	}
	if e.hasTimedLocked(catalog.AbilitySpeedUpOpponent) {
		rate /= 2
	}
	return rate
}

// Stars returns the current star balance.
func (e *Engine) Stars() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stars
}

// SpendStars deducts stars if the balance covers the amount. Returns
// the remaining balance and whether the spend happened.
func (e *Engine) SpendStars(amount int) (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount < 0 || e.stars < amount {
		return e.stars, false
	}
	e.stars -= amount
	return e.stars, true
}

// GrantStars adds stars up to the capacity. Returns the new balance.
func (e *Engine) GrantStars(amount int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.addStarsLocked(amount)
	return e.stars
}

func (e *Engine) addStarsLocked(amount int) {
	e.stars += amount
	if e.stars > e.cfg.StarCapacity {
		e.stars = e.cfg.StarCapacity
	}
	if e.stars < 0 {
		e.stars = 0
	}
}

// GameOver reports whether the board has topped out.
func (e *Engine) GameOver() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gameOver
}

// PlanningView clones the board and current piece for move planning.
// ok is false while no piece is falling.
func (e *Engine) PlanningView() (*Board, *Piece, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil || e.gameOver || e.blackholeActive {
		return nil, nil, false
	}
	return e.board.Clone(), e.current.Clone(), true
}

// lineScore returns the base score for clearing n rows at once.
func lineScore(n int) int {
	switch n {
	case 1:
		return 100
	case 2:
		return 300
	case 3:
		return 500
	default:
		return 800
	}
}
