// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package jointnmf implements joint non-negative factorizations of multi-modal single-cell data.
//
// Every modality i is a features × cells matrix 𝐀ᵢ whose columns lie on the simplex.
// The models look for a shared cell embedding 𝐖 (latent × cells) and per-modality feature
// factors 𝐇ᵢ (features × latent) with 𝐀ᵢ ≈ 𝐇ᵢ𝐖.
//
// # OTintNMF
//
// The reconstruction is measured by entropic optimal transport with the Gibbs kernel
// 𝐊ᵢ = 𝚎𝚡𝚙(-𝐂ᵢ/ε) of a ground cost between features. The factors are never optimized
// directly, the solver works on the dual potentials 𝐆ᴴᵢ and 𝐆ᵂᵢ (features × cells):
//
//	𝐋ᴴᵢ(𝐆) = 𝙾𝚃*(𝐀ᵢ, 𝐆) + ρʰ Σⱼ 𝚕𝚘𝚐𝚜𝚞𝚖𝚎𝚡𝚙(-(𝐆𝐖ᵀ)ⱼ / ρʰ)
//	𝐋ᵂ(𝐆₁…𝐆ₙ) = Σᵢ 𝙾𝚃*(𝐀ᵢ, 𝐆ᵢ) + nρʷ Σⱼ 𝚕𝚘𝚐𝚜𝚞𝚖𝚎𝚡𝚙(-(Σᵢ𝐇ᵢᵀ𝐆ᵢ)ⱼ / nρʷ)
//
// where 𝙾𝚃*(𝐀, 𝐆) = ε(𝙴(𝐀) + Σ 𝐀 ⊙ 𝚕𝚘𝚐(𝐊 𝚎𝚡𝚙(𝐆/ε))) and the log-sum-exp runs down each column.
// The primal factors are recovered by column-wise softmin
//
//	𝐇ᵢ = 𝚜𝚘𝚏𝚝𝚖𝚒𝚗(𝐆ᴴᵢ𝐖ᵀ / ρʰ),  𝐖 = 𝚜𝚘𝚏𝚝𝚖𝚒𝚗(Σᵢ𝐇ᵢᵀ𝐆ᵂᵢ / nρʷ)
//
// so their columns always lie on the simplex. Optimize alternates L-BFGS steps on the two
// problems until the shared loss stalls.
//
// # Baselines
//
// INMF and IntNMF are classic block-coordinate factorizations solved by non-negative least squares.
//
// # References
//
//	G.-J. Huizing, G. Peyré, L. Cantini, 'Optimal transport improves cell-cell similarity inference
//	in single-cell omics data', Bioinformatics 38(8), 2022.
//	J.D. Welch et al., 'Single-cell multi-omic integration compares and contrasts features of brain
//	cell identity', Cell 177(7), 2019.
package jointnmf
