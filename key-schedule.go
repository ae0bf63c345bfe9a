package treekem

///
/// Key schedule epoch
///

// epochSecrets are the per-epoch outputs of the key schedule.  Each output
// uses its own derivation label, keeping the outputs cryptographically
// independent: knowing one reveals nothing about its siblings, and no output
// reveals the epoch secret it came from.
type epochSecrets struct {
	Suite CipherSuite

	EpochSecret       []byte `tls:"head=1"`
	ApplicationSecret []byte `tls:"head=1"`
	SenderDataSecret  []byte `tls:"head=1"`
	ConfirmationKey   []byte `tls:"head=1"`
	InitSecret        []byte `tls:"head=1"`
}

// newEpochSecrets derives the secrets of one epoch from the tree's root
// secret and the prior epoch's init secret.  The derivation is a pure
// function; callers thread the prior init secret explicitly, and group
// formation passes a creation secret in its place.
//
//	epoch_secret = HKDF-Extract(salt = prior_init, ikm = root_secret)
func newEpochSecrets(suite CipherSuite, rootSecret, priorInit, context []byte) epochSecrets {
	if len(rootSecret) == 0 {
		rootSecret = suite.zero()
	}
	if len(priorInit) == 0 {
		priorInit = suite.zero()
	}

	epochSecret := suite.hkdfExtract(priorInit, rootSecret)
	return epochSecrets{
		Suite:             suite,
		EpochSecret:       epochSecret,
		ApplicationSecret: suite.deriveSecret(epochSecret, "app", context),
		SenderDataSecret:  suite.deriveSecret(epochSecret, "sender data", context),
		ConfirmationKey:   suite.deriveSecret(epochSecret, "confirm", context),
		InitSecret:        suite.deriveSecret(epochSecret, "init", context),
	}
}

// Next advances the schedule by one epoch.  The prior epoch's secrets are
// not recoverable from the new ones, and the fresh root secret keeps an
// attacker who learned an old private key from following along.
func (es epochSecrets) Next(rootSecret, context []byte) epochSecrets {
	return newEpochSecrets(es.Suite, rootSecret, es.InitSecret, context)
}

// confirmationMAC computes HMAC(confirmation_key, transcript_hash || signature).
func (es epochSecrets) confirmationMAC(transcriptHash []byte, signature Signature) []byte {
	mac := es.Suite.newHMAC(es.ConfirmationKey)
	mac.Write(transcriptHash)
	mac.Write(signature.Data)
	return mac.Sum(nil)
}
