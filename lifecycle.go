package etherdfs

// PreviousHandler is a chain-of-responsibility hook: a call for a drive
// letter this Engine doesn't map is handed to whatever handler was
// installed before this one, if any, instead of patching a resident
// interrupt vector in place.
type PreviousHandler func(local uint8) error

// Installer composes an Engine with the handler chain it should defer
// to for drive letters it doesn't own.
type Installer struct {
	Engine   *Engine
	Previous PreviousHandler
}

// Route dispatches a call for local: if the Engine maps it, the caller
// should proceed with one of Engine's op methods; otherwise, if a
// previous handler was installed, it is invoked; otherwise ErrNotOurs
// is returned unchanged.
func (in *Installer) Route(local uint8) error {
	if _, ok := in.Engine.Mapping.Lookup(local); ok {
		return nil
	}
	if in.Previous != nil {
		return in.Previous(local)
	}
	return ErrNotOurs
}

// Install binds a set of local-to-remote drive mappings, one per the
// CLI grammar's rdrv-ldrv pairs. It fails closed: on the first mapping
// error, already-applied mappings in this call are left in place and
// the error is returned.
func Install(e *Engine, pairs map[uint8]uint8) error {
	for local, remote := range pairs {
		if err := e.Mapping.Map(local, remote); err != nil {
			e.logEntry().WithField("local", local).WithField("remote", remote).WithError(err).Warn("etherdfs: install failed")
			return err
		}
		e.logEntry().WithField("local", local).WithField("remote", remote).Info("etherdfs: drive mapped")
	}
	return nil
}

// Unload clears every drive letter this Engine currently maps. The
// caller is responsible for verifying no file handles remain open on
// any of them before calling this.
func Unload(e *Engine) {
	for _, local := range e.Mapping.Letters() {
		e.Mapping.Unmap(local)
		e.logEntry().WithField("local", local).Info("etherdfs: drive unmapped")
	}
}
