package hardware

import "sync"

// Outputs is the last value written to every channel.
type Outputs struct {
	Esc    uint32
	Servo  uint32
	Lights bool
	Horn   bool
}

// Recorder keeps outputs in memory and counts writes per channel. It is safe
// for concurrent readers.
type Recorder struct {
	mu          sync.Mutex
	out         Outputs
	escWrites   int
	servoWrites int
	lightWrites int
	hornWrites  int
	fail        error
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

// FailWith makes every following write return err; nil restores normal writes.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = err
}

func (r *Recorder) WriteEscDuty(duty uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.out.Esc = duty
	r.escWrites++
	return nil
}

func (r *Recorder) WriteServoDuty(duty uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.out.Servo = duty
	r.servoWrites++
	return nil
}

func (r *Recorder) WriteLights(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.out.Lights = on
	r.lightWrites++
	return nil
}

func (r *Recorder) WriteHorn(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.out.Horn = on
	r.hornWrites++
	return nil
}

func (r *Recorder) Outputs() Outputs {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.out
}

// Writes returns the write counts for esc, servo, lights and horn.
func (r *Recorder) Writes() (esc, servo, lights, horn int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.escWrites, r.servoWrites, r.lightWrites, r.hornWrites
}

func (r *Recorder) Close() error { return nil }
