package app

// Key binding constants used in handleKey.
const (
	KeyQuit        = "q"
	KeyQuitUpper   = "Q"
	KeyCtrlC       = "ctrl+c"
	KeyConnect     = "c"
	KeyDisconnect  = "d"
	KeyPause       = "p"
	KeyResume      = "r"
	KeyReset       = "x"
	KeyStart       = "s"
	KeyClearRun    = "n"
	KeyUserPersona = "u"
	KeyTab         = "tab"
	KeyUp          = "up"
	KeyDown        = "down"
	KeyJ           = "j"
	KeyK           = "k"
	KeyEnter       = "enter"
)
